package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Close releases the underlying client connections
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// IsAvailable checks that the configured model can be described
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.GenerativeModel(p.config.model("", "gemini-1.5-flash")).Info(ctx)
	return err == nil
}

// Extract requests a JSON answer constrained to the extraction schema
func (p *GeminiProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	name := p.config.model(req.Model, "gemini-1.5-flash")

	model := p.client.GenerativeModel(name)
	model.SetTemperature(float32(p.config.Temperature))
	model.SetMaxOutputTokens(int32(p.config.maxTokens()))
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema()

	resp, err := model.GenerateContent(ctx, genai.Text(req.Text))
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned from Gemini", ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty content returned from Gemini", ErrMalformedResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}

	result, err := ParseExtraction(text.String())
	if err != nil {
		return nil, err
	}

	out := &ExtractResponse{Result: result, Model: name}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// geminiSchema mirrors ToolSchema in Gemini's schema type
func geminiSchema() *genai.Schema {
	list := func() *genai.Schema {
		return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"authors_original": list(),
			"affiliations":     list(),
		},
		Required: []string{"authors_original"},
	}
}
