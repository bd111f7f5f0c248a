package llm

import (
	"context"
	"time"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// Provider defines the interface for name extraction backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Extract splits one cleaned creator string into names and affiliations
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the input for one extraction call
type ExtractRequest struct {
	// Text is the normalized creator string
	Text string

	// Model overrides the configured model
	Model string
}

// ExtractResponse contains the parsed extraction
type ExtractResponse struct {
	Result model.ExtractionResult

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for a single API request
	Timeout time.Duration

	Temperature float64

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Model:     "gpt-4o",
		Timeout:   60 * time.Second,
		MaxTokens: 1000,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 1000
	}
	return c.MaxTokens
}

func (c Config) model(override, fallback string) string {
	if override != "" {
		return override
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func emptyResult() model.ExtractionResult {
	return model.ExtractionResult{Authors: []string{}, Affiliations: []string{}}
}
