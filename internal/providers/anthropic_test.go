package providers

import (
	"encoding/json"
	"testing"

	"steward/internal/agent"
	"steward/pkg/models"
)

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropic(AnthropicConfig{}); err == nil {
		t.Fatal("expected missing API key to fail")
	}
	p, err := NewAnthropic(AnthropicConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	if p.maxRetries != 3 || p.defaultModel != defaultAnthropicModel {
		t.Errorf("defaults not applied: retries=%d model=%s", p.maxRetries, p.defaultModel)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hi", Blocks: []models.ContentBlock{
			{Type: "image", MimeType: "image/png", Data: "aGVsbG8="},
		}},
		{Role: models.RoleAssistant, Content: "checking", ToolCalls: []models.ToolCall{
			{ID: "tc_1", Name: "read_file", Input: json.RawMessage(`{"path":"x"}`)},
		}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "tc_1", Content: "data", IsError: false},
		}},
		{Role: models.RoleUser}, // empty, must be dropped
	}

	converted, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	// System skipped, empty skipped: user, assistant, tool-as-user remain.
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if got := len(converted[0].Content); got != 2 {
		t.Errorf("expected text plus image block on user message, got %d blocks", got)
	}
	if got := len(converted[1].Content); got != 2 {
		t.Errorf("expected text plus tool_use block on assistant message, got %d blocks", got)
	}
}

func TestConvertMessages_InvalidToolInput(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "tc_1", Name: "bash", Input: json.RawMessage(`{broken`)},
		}},
	}
	if _, err := convertMessages(msgs); err == nil {
		t.Fatal("expected malformed tool input to fail conversion")
	}
}

func TestConvertTools(t *testing.T) {
	defs := []agent.ToolDefinition{{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}}

	tools, err := convertTools(defs)
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("unexpected conversion result: %+v", tools)
	}
	if tools[0].OfTool.Name != "read_file" {
		t.Errorf("expected tool name to carry over, got %q", tools[0].OfTool.Name)
	}
}
