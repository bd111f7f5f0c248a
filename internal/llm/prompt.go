package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// ToolName is the function name offered to providers that support tool calling
const ToolName = "parse_authors"

// ToolDescription describes the extraction tool to the model
const ToolDescription = "Extract original author strings and affiliations without altering or translating names."

// SystemPrompt instructs the model to split, never rewrite
const SystemPrompt = "You clean bibliographic metadata. The input is the raw creator field of one academic record. " +
	"Answer with a JSON object holding two keys: 'authors_original', the personal names exactly as written " +
	"(only leading and trailing spaces removed), and 'affiliations', everything that is not a personal name " +
	"such as organisations, emails, phone numbers, ORCID iDs, DOIs and addresses. " +
	"Never translate, transliterate, change letter case, reorder the parts of one name or add or drop accents. " +
	"Your only job is to split the string into individual names. " +
	"When unsure whether a token is an affiliation, put it in 'affiliations'. Use an empty list when there are none."

// ToolSchema is the JSON schema of the tool arguments
var ToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "authors_original": {"type": "array", "items": {"type": "string"}},
    "affiliations": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["authors_original"]
}`)

// ErrMalformedResponse marks a response that does not match the tool schema
var ErrMalformedResponse = errors.New("malformed extraction response")

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func toolSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("parse_authors.json", strings.NewReader(string(ToolSchema))); err != nil {
			compileErr = fmt.Errorf("load tool schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("parse_authors.json")
	})
	return compiledSchema, compileErr
}

// ParseExtraction decodes and validates tool arguments. The legacy key
// "authors" is accepted in place of "authors_original".
func ParseExtraction(raw string) (model.ExtractionResult, error) {
	var result model.ExtractionResult

	body := extractJSONObject(raw)
	if body == "" {
		return result, fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(raw, 80))
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, ok := doc["authors_original"]; !ok {
		if legacy, ok := doc["authors"]; ok {
			doc["authors_original"] = legacy
			delete(doc, "authors")
		}
	}

	schema, err := toolSchema()
	if err != nil {
		return result, err
	}
	if err := schema.Validate(doc); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result.Authors = trimAll(doc["authors_original"])
	result.Affiliations = trimAll(doc["affiliations"])
	return result, nil
}

func trimAll(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractJSONObject strips code fences and surrounding prose
func extractJSONObject(raw string) string {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return ""
	}
	return trimmed[start : end+1]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
