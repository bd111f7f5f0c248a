package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicDefaultURL   = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicExtractModel = "claude-3-5-sonnet-20241022"
	anthropicPingModel    = "claude-3-5-haiku-20241022"
)

// AnthropicProvider calls the Messages API and forces the parse_authors tool
type AnthropicProvider struct {
	endpoint   string
	header     http.Header
	httpClient *http.Client
	config     Config
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	Messages    []anthropicMessage   `json:"messages"`
	System      string               `json:"system,omitempty"`
	Temperature float64              `json:"temperature"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// anthropicBlock is one content block; tool_use blocks carry Name and Input
type anthropicBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicResponse struct {
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicProvider creates a provider. An API key is required.
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}

	base := config.BaseURL
	if base == "" {
		base = anthropicDefaultURL
	}

	header := http.Header{}
	header.Set("x-api-key", config.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	return &AnthropicProvider{
		endpoint:   strings.TrimSuffix(base, "/") + "/v1/messages",
		header:     header,
		httpClient: config.httpClient(),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable sends a minimal message with the cheapest model
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	var resp anthropicResponse
	err := p.send(ctx, anthropicRequest{
		Model:     p.config.model("", anthropicPingModel),
		MaxTokens: 10,
		Messages:  []anthropicMessage{{Role: "user", Content: "Hi"}},
	}, &resp)
	return err == nil
}

// Extract sends the creator string with tool_choice pinned to parse_authors
func (p *AnthropicProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	var resp anthropicResponse
	err := p.send(ctx, anthropicRequest{
		Model:       p.config.model(req.Model, anthropicExtractModel),
		MaxTokens:   p.config.maxTokens(),
		System:      SystemPrompt,
		Temperature: p.config.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Text}},
		Tools:       []anthropicTool{{Name: ToolName, Description: ToolDescription, InputSchema: ToolSchema}},
		ToolChoice:  &anthropicToolChoice{Type: "tool", Name: ToolName},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	args := toolArguments(resp.Content)
	if args == "" {
		return nil, fmt.Errorf("%w: no tool_use block in anthropic response", ErrMalformedResponse)
	}
	result, err := ParseExtraction(args)
	if err != nil {
		return nil, err
	}

	return &ExtractResponse{
		Result:     result,
		Model:      resp.Model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func (p *AnthropicProvider) send(ctx context.Context, req anthropicRequest, out *anthropicResponse) error {
	return postJSON(ctx, p.httpClient, p.endpoint, p.header, req, out, anthropicErrorMessage)
}

// toolArguments prefers the parse_authors tool input and falls back to the
// first text block, which some gateways return instead of tool_use
func toolArguments(blocks []anthropicBlock) string {
	var text string
	for _, b := range blocks {
		switch {
		case b.Type == "tool_use" && b.Name == ToolName:
			return string(b.Input)
		case b.Type == "text" && text == "":
			text = b.Text
		}
	}
	return strings.TrimSpace(text)
}

func anthropicErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error.Message == "" {
		return ""
	}
	return e.Error.Type + ": " + e.Error.Message
}
