package agent

import (
	"context"
	"encoding/json"

	"steward/pkg/models"
)

// ToolDefinition is the provider-facing description of a registered tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// CompletionRequest is one streaming completion call against a provider.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []ToolDefinition
	MaxTokens int
}

// Chunk is one streamed event from a provider. Exactly one of the value
// fields is set per chunk; Done closes the stream normally, Err closes it
// with a failure.
type Chunk struct {
	Text     string
	Thinking string
	ToolCall *models.ToolCall
	Usage    *models.Usage
	Done     bool
	Err      error
}

// ModelProvider streams assistant responses. Implementations must close
// the returned channel after sending a Done or Err chunk, and must honor
// context cancellation.
type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}

// ToolResult is what a tool execution produces. Errors a tool can
// describe (bad path, command failure) are returned as IsError results,
// not as Go errors; the conversation continues either way.
type ToolResult struct {
	Content string
	IsError bool
}

// Tool is a capability the model can invoke.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema for the tool's argument object.
	Schema() json.RawMessage

	// ReadOnly reports whether the tool cannot mutate project state.
	ReadOnly() bool

	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}
