// Package llm provides the content-generation service used by the book pipeline.
// It hides the provider behind a tiered Client so synthesizers only ask for
// structured output, free text, or an image.
package llm

import "fmt"

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for cheap, short tasks
	TierLite ModelTier = "lite"
	// TierStandard is for outlines and chapter prose
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form prose when quality matters more than latency
	TierAdvanced ModelTier = "advanced"
	// TierImage is the image-capable model used for cover art
	TierImage ModelTier = "image"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider
	ProviderOpenAI Provider = "openai"
)

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
			TierImage:    "gemini-2.5-flash-image",
		},
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
			TierAdvanced: "gpt-4.1",
			TierImage:    "dall-e-3",
		},
	}
}

// ConfigForProvider returns the default configuration of a named provider.
func ConfigForProvider(name string) (*Config, error) {
	switch Provider(name) {
	case "", ProviderGemini:
		return DefaultGeminiConfig(), nil
	case ProviderOpenAI:
		return DefaultOpenAIConfig(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// The image tier has no text fallback: a text model cannot paint.
	if tier == TierImage {
		return ""
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
