package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned when a hosted provider has no credentials
var ErrMissingAPIKey = errors.New("API key is required")

// OpenAIProvider implements the Provider interface for OpenAI models using
// forced tool calling
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = config.httpClient()

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Extract forces a parse_authors tool call and parses its arguments
func (p *OpenAIProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	model := p.config.model(req.Model, openai.GPT4o)

	// go-openai drops a zero temperature, which the API reads as 1
	temperature := float32(p.config.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		MaxTokens:   p.config.maxTokens(),
		Temperature: temperature,
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        ToolName,
					Description: ToolDescription,
					Parameters:  ToolSchema,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: ToolName},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices from openai", ErrMalformedResponse)
	}

	msg := resp.Choices[0].Message
	var args string
	switch {
	case len(msg.ToolCalls) > 0:
		args = msg.ToolCalls[0].Function.Arguments
	case msg.Content != "":
		// Compatible gateways sometimes answer in content instead of a tool call
		args = msg.Content
	default:
		// A model that declines the tool found nothing to extract
		return &ExtractResponse{
			Result:     emptyResult(),
			Model:      resp.Model,
			TokensUsed: resp.Usage.TotalTokens,
		}, nil
	}

	result, err := ParseExtraction(args)
	if err != nil {
		return nil, err
	}

	return &ExtractResponse{
		Result:     result,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
