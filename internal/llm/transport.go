package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/creatorcheck/internal/util"
)

// Answers to a single creator string are small; anything larger is broken
const maxResponseBytes = 4 << 20

// StatusError is a non-200 answer from a provider endpoint
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// httpClient builds the client for providers without an SDK
func (c Config) httpClient() *http.Client {
	return &http.Client{
		Timeout: c.timeout(),
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(c.HTTPProxy, c.HTTPSProxy, c.NoProxy),
		},
	}
}

// postJSON sends in as a JSON body and decodes a 200 answer into out.
// describe pulls a readable message out of an error body and may return "".
func postJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, in, out any, describe func([]byte) string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if describe != nil {
			msg = describe(data)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
