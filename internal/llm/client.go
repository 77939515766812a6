package llm

import (
	"context"
	"fmt"
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates free text using the specified model tier
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON generates JSON constrained by schema (nil means unconstrained)
	GenerateJSON(ctx context.Context, prompt string, schema *Schema, tier ModelTier) (string, error)
	// GenerateImage generates an image. A nil image with a nil error means the
	// model answered without any image part.
	GenerateImage(ctx context.Context, prompt string, tier ModelTier) (*Image, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// Image is a generated image payload
type Image struct {
	MIMEType string
	Data     []byte
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}
