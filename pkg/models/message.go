// Package models provides the domain types shared across the steward core.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ContentBlock is one piece of mixed user input: plain text or an
// inline image for vision-capable models.
type ContentBlock struct {
	// Type is "text" or "image".
	Type string `json:"type"`

	// Text is the text content when Type is "text".
	Text string `json:"text,omitempty"`

	// MimeType is the image media type (e.g. "image/png") when Type is "image".
	MimeType string `json:"mime_type,omitempty"`

	// Data is base64-encoded image bytes when Type is "image".
	Data string `json:"data,omitempty"`
}

// UserInput is what a caller submits to start a turn: either plain text
// or a mixed list of text/image blocks.
type UserInput struct {
	Text   string
	Blocks []ContentBlock
}

// TextInput wraps a plain string as turn input.
func TextInput(text string) UserInput {
	return UserInput{Text: text}
}

// Message is a single entry in the conversation history.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ToolCall is a tool invocation proposed by the model.
type ToolCall struct {
	// ID is the proposal identifier assigned by the provider.
	ID string `json:"id"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Input is the raw JSON argument object.
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the outcome of an executed (or denied) tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Usage holds token counts reported by the model provider. Providers may
// report usage zero, one, or several times per turn; counts are additive.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage delta into u.
func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
