package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaProvider calls a local Ollama server in schema-constrained JSON mode
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	System  string          `json:"system,omitempty"`
	Format  json.RawMessage `json:"format,omitempty"` // JSON schema the answer must follow
	Options ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`

	// Token counts (only present when done=true)
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, qwen2.5)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: config.httpClient(),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks if the Ollama server answers
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Extract asks for a schema-constrained JSON answer
func (p *OllamaProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	apiReq := ollamaRequest{
		Model:  p.config.model(req.Model, ""),
		Prompt: req.Text,
		Stream: false,
		System: SystemPrompt,
		Format: ToolSchema,
		Options: ollamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.maxTokens(),
		},
	}

	var resp ollamaResponse
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/generate", nil, apiReq, &resp, ollamaErrorMessage); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	result, err := ParseExtraction(resp.Response)
	if err != nil {
		return nil, err
	}

	return &ExtractResponse{
		Result:     result,
		Model:      resp.Model,
		TokensUsed: resp.PromptEvalCount + resp.EvalCount,
	}, nil
}

func ollamaErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}
