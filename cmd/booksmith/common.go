package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/outline"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
)

// Flags shared by every command.
var (
	configPath string
	provider   string
	apiKey     string
	models     map[string]string
	verbose    bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.StringVar(&provider, "provider", "", "Model provider: gemini or openai (defaults to BOOKSMITH_PROVIDER, then gemini)")
	flags.StringVar(&apiKey, "api-key", "", "Provider API key (defaults to GEMINI_API_KEY or OPENAI_API_KEY)")
	flags.StringToStringVar(&models, "model", nil, "Model override per tier, e.g. --model standard=gemini-2.5-pro")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

// newClient builds the model client. Tests replace it.
var newClient = buildClient

// resolveConfig layers the config file, flags, environment and defaults.
// apply copies command-specific flags that were explicitly set.
func resolveConfig(cmd *cobra.Command, apply func(*config.Config)) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = strings.ToLower(provider)
	}
	if flags.Changed("api-key") {
		cfg.APIKey = apiKey
	}
	if flags.Changed("model") {
		if cfg.Models == nil {
			cfg.Models = make(map[string]string)
		}
		for tier, model := range models {
			cfg.Models[tier] = model
		}
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if apply != nil {
		apply(&cfg)
	}

	cfg = cfg.MergeWithDefaults(config.FromEnv())
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Verbose && configPath != "" {
		_, _ = fmt.Fprintf(os.Stderr, "Loaded config from: %s\n", configPath)
	}
	return cfg, nil
}

// buildClient creates the model client for the configured provider.
func buildClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	llmCfg, err := llm.ConfigForProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	for tier, model := range cfg.Models {
		switch t := llm.ModelTier(tier); t {
		case llm.TierLite, llm.TierStandard, llm.TierAdvanced, llm.TierImage:
			llmCfg = llmCfg.WithModel(t, model)
		default:
			return nil, fmt.Errorf("unknown model tier %q (want lite, standard, advanced or image)", tier)
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("an API key is required: set GEMINI_API_KEY or OPENAI_API_KEY, or pass --api-key")
	}
	return llm.NewClient(ctx, llmCfg, cfg.APIKey)
}

// newLogger returns the diagnostics logger: stderr when verbose, silent otherwise.
func newLogger(cfg config.Config) *log.Logger {
	if cfg.Verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// newSession wires a session from the model client. A nil outliner uses the
// model to synthesize the outline.
func newSession(client llm.Client, outliner pipeline.Outliner, cfg config.Config, logger *log.Logger) *pipeline.Session {
	if outliner == nil {
		outliner = outline.NewSynthesizer(client, logger)
	}
	orch := pipeline.NewOrchestrator(chapter.NewWriter(client), cover.NewPainter(client), logger)
	orch.DisplayDelay = cfg.DisplayDelayDuration()
	return pipeline.NewSession(outliner, orch, logger)
}

func newPackager(cfg config.Config) *rendering.Packager {
	return &rendering.Packager{PDF: &rendering.ChromePDF{Timeout: cfg.PDFTimeoutDuration(), Verbose: cfg.Verbose}}
}
