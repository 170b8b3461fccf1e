package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"steward/internal/agent"
)

// maxReadBytes caps how much of a file a single read returns.
const maxReadBytes = 256 * 1024

func toolError(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}

func mustSchema(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// ReadTool returns file contents, optionally windowed by line offset and limit.
type ReadTool struct {
	resolver *Resolver
}

func NewReadTool(resolver *Resolver) *ReadTool {
	return &ReadTool{resolver: resolver}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read the contents of a file in the workspace." }
func (t *ReadTool) ReadOnly() bool      { return true }

func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"offset": map[string]any{"type": "integer", "description": "1-based line to start from"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines"},
		},
		"required":             []string{"path"},
		"additionalProperties": false,
	})
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	path, _ := args["path"].(string)
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return toolError("%v", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError("file not found: %s", path)
		}
		return toolError("stat %s: %v", path, err)
	}
	if info.IsDir() {
		return toolError("%s is a directory, use list_dir", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError("read %s: %v", path, err)
	}

	content := string(data)
	truncated := false
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes]
		truncated = true
	}

	offset := intArg(args, "offset")
	limit := intArg(args, "limit")
	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 1 {
			start = offset - 1
		}
		if start >= len(lines) {
			return toolError("offset %d is past the end of %s (%d lines)", offset, path, len(lines))
		}
		end := len(lines)
		if limit > 0 && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	if truncated {
		content += fmt.Sprintf("\n... (truncated at %d bytes)", maxReadBytes)
	}
	return &agent.ToolResult{Content: content}, nil
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}
