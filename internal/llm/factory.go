package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(ctx, config)

	case "":
		return nil, fmt.Errorf("no LLM provider configured (set llm.provider)")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, gemini)", config.Provider)
	}
}

// ConfigFromModel converts the loaded settings to a provider config. An empty
// API key falls back to the provider's conventional environment variable.
func ConfigFromModel(cfg *model.Config) Config {
	c := Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.Extraction.CallTimeout,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		HTTPProxy:   cfg.HTTP.HTTPProxy,
		HTTPSProxy:  cfg.HTTP.HTTPSProxy,
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(apiKeyEnv(c.Provider))
	}
	return c
}

func apiKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
