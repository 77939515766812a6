// Package config provides configuration loading and validation for the CLI
// and the API server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, environment
// variables or CLI flags.
type Config struct {
	// Model provider
	Provider string            `json:"provider,omitempty"` // "gemini" or "openai"
	APIKey   string            `json:"api_key,omitempty"`  // Provider API key
	Models   map[string]string `json:"models,omitempty"`   // Tier name -> model override

	// Output
	OutputDir string `json:"output_dir,omitempty"` // Where packaged books are written
	Format    string `json:"format,omitempty"`     // html, pdf or md

	// Behavior
	DisplayDelay string `json:"display_delay,omitempty"` // Pause before a run reports completion, e.g. "1s"
	PDFTimeout   string `json:"pdf_timeout,omitempty"`   // Chrome print deadline, e.g. "60s"
	Verbose      bool   `json:"verbose,omitempty"`       // Print detailed debug information

	// Server and persistence
	Port          int    `json:"port,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty"` // PostgreSQL connection URL
	RedisAddr     string `json:"redis_addr,omitempty"`   // Redis address for event fan-out
	RedisPassword string `json:"redis_password,omitempty"`
	S3Endpoint    string `json:"s3_endpoint,omitempty"` // MinIO or S3 endpoint for artifacts
	S3Region      string `json:"s3_region,omitempty"`
	S3AccessKey   string `json:"s3_access_key,omitempty"`
	S3SecretKey   string `json:"s3_secret_key,omitempty"`
	S3Bucket      string `json:"s3_bucket,omitempty"`
	S3UseSSL      bool   `json:"s3_use_ssl,omitempty"`
	SessionLimit  int    `json:"session_limit,omitempty"` // Max sessions kept in memory
}

// Defaults returns the values used when nothing else is configured.
func Defaults() Config {
	return Config{
		Provider:     "gemini",
		OutputDir:    ".",
		Format:       "html",
		DisplayDelay: "1s",
		PDFTimeout:   "60s",
		Port:         8080,
		S3Bucket:     "booksmith-artifacts",
		SessionLimit: 256,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables. Unset variables leave
// fields empty so the result can be merged under file and flag values.
func FromEnv() Config {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("BOOKSMITH_PROVIDER")))
	cfg := Config{
		Provider:      provider,
		APIKey:        apiKeyFromEnv(provider),
		OutputDir:     os.Getenv("BOOKSMITH_OUTPUT_DIR"),
		Format:        os.Getenv("BOOKSMITH_FORMAT"),
		DisplayDelay:  os.Getenv("BOOKSMITH_DISPLAY_DELAY"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		S3Endpoint:    os.Getenv("ARTIFACT_S3_ENDPOINT"),
		S3Region:      os.Getenv("ARTIFACT_S3_REGION"),
		S3AccessKey:   firstNonEmpty(os.Getenv("ARTIFACT_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
		S3SecretKey:   firstNonEmpty(os.Getenv("ARTIFACT_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
		S3Bucket:      os.Getenv("ARTIFACT_S3_BUCKET"),
	}
	if raw := os.Getenv("ARTIFACT_S3_USE_SSL"); raw != "" {
		cfg.S3UseSSL, _ = strconv.ParseBool(raw)
	}
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port, _ = strconv.Atoi(raw)
	}
	return cfg
}

// apiKeyFromEnv picks the key variable that matches the provider.
func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("config error: unknown provider %q (want gemini or openai)", c.Provider)
	}

	switch strings.ToLower(c.Format) {
	case "", "html", "pdf", "md", "markdown":
	default:
		return fmt.Errorf("config error: unknown format %q (want html, pdf or md)", c.Format)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.SessionLimit < 0 {
		return fmt.Errorf("config error: 'session_limit' must be non-negative")
	}

	if _, err := parseDuration("display_delay", c.DisplayDelay); err != nil {
		return err
	}
	if _, err := parseDuration("pdf_timeout", c.PDFTimeout); err != nil {
		return err
	}

	if c.OutputDir != "" {
		if info, err := os.Stat(c.OutputDir); err == nil && !info.IsDir() {
			return fmt.Errorf("config error: output_dir is not a directory: %s", c.OutputDir)
		}
	}

	return nil
}

// DisplayDelayDuration returns the parsed display delay, zero when unset.
func (c *Config) DisplayDelayDuration() time.Duration {
	d, _ := parseDuration("display_delay", c.DisplayDelay)
	return d
}

// PDFTimeoutDuration returns the parsed PDF timeout, zero when unset.
func (c *Config) PDFTimeoutDuration() time.Duration {
	d, _ := parseDuration("pdf_timeout", c.PDFTimeout)
	return d
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config error: invalid '%s': %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config error: '%s' must be non-negative", field)
	}
	return d, nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to layer config file values over environment and built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	strs := []struct {
		dst *string
		src string
	}{
		{&result.Provider, defaults.Provider},
		{&result.APIKey, defaults.APIKey},
		{&result.OutputDir, defaults.OutputDir},
		{&result.Format, defaults.Format},
		{&result.DisplayDelay, defaults.DisplayDelay},
		{&result.PDFTimeout, defaults.PDFTimeout},
		{&result.DatabaseURL, defaults.DatabaseURL},
		{&result.RedisAddr, defaults.RedisAddr},
		{&result.RedisPassword, defaults.RedisPassword},
		{&result.S3Endpoint, defaults.S3Endpoint},
		{&result.S3Region, defaults.S3Region},
		{&result.S3AccessKey, defaults.S3AccessKey},
		{&result.S3SecretKey, defaults.S3SecretKey},
		{&result.S3Bucket, defaults.S3Bucket},
	}
	for _, f := range strs {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.SessionLimit == 0 {
		result.SessionLimit = defaults.SessionLimit
	}

	// Model overrides merge per tier; explicit entries win
	if len(defaults.Models) > 0 {
		merged := make(map[string]string, len(defaults.Models)+len(result.Models))
		for k, v := range defaults.Models {
			merged[k] = v
		}
		for k, v := range result.Models {
			merged[k] = v
		}
		result.Models = merged
	}

	// Only opt-in bools merge; Verbose is left to the CLI flag
	result.S3UseSSL = result.S3UseSSL || defaults.S3UseSSL

	return result
}
