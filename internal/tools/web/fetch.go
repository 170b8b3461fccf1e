// Package web implements the URL fetch tool.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"steward/internal/agent"
)

const maxFetchBytes = 1 << 20

// FetchTool retrieves a URL over HTTP(S) and returns the body as text.
type FetchTool struct {
	client *http.Client
}

func NewFetchTool() *FetchTool {
	return &FetchTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *FetchTool) Name() string        { return "fetch" }
func (t *FetchTool) Description() string { return "Fetch a URL and return the response body." }
func (t *FetchTool) ReadOnly() bool      { return true }

func (t *FetchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "http or https URL to fetch"},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return data
}

func (t *FetchTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	raw, _ := args["url"].(string)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid URL %q: only http and https are supported", raw), IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	req.Header.Set("User-Agent", "steward/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("fetch %s: %v", raw, err), IsError: true}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("read %s: %v", raw, err), IsError: true}, nil
	}
	truncated := false
	if len(body) > maxFetchBytes {
		body = body[:maxFetchBytes]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d %s\n\n", resp.StatusCode, resp.Header.Get("Content-Type"))
	b.Write(body)
	if truncated {
		fmt.Fprintf(&b, "\n... (truncated at %d bytes)", maxFetchBytes)
	}
	return &agent.ToolResult{Content: b.String(), IsError: resp.StatusCode >= 400}, nil
}
