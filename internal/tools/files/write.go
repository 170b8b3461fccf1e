package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"steward/internal/agent"
)

// WriteTool creates or overwrites a file.
type WriteTool struct {
	resolver *Resolver
}

func NewWriteTool(resolver *Resolver) *WriteTool {
	return &WriteTool{resolver: resolver}
}

func (t *WriteTool) Name() string { return "write_file" }
func (t *WriteTool) Description() string {
	return "Write content to a file, creating it and any parent directories."
}
func (t *WriteTool) ReadOnly() bool { return false }

func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"content": map[string]any{"type": "string", "description": "Full file content"},
		},
		"required":             []string{"path", "content"},
		"additionalProperties": false,
	})
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return toolError("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError("create directories for %s: %v", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError("write %s: %v", path, err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

// EditTool replaces an exact string in a file. The target string must be
// unique unless replace_all is set, so an ambiguous edit cannot silently
// change the wrong occurrence.
type EditTool struct {
	resolver *Resolver
}

func NewEditTool(resolver *Resolver) *EditTool {
	return &EditTool{resolver: resolver}
}

func (t *EditTool) Name() string { return "edit_file" }
func (t *EditTool) Description() string {
	return "Replace an exact string in a file with a new string."
}
func (t *EditTool) ReadOnly() bool { return false }

func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":        map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"old_string":  map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string":  map[string]any{"type": "string", "description": "Replacement text"},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence"},
		},
		"required":             []string{"path", "old_string", "new_string"},
		"additionalProperties": false,
	})
}

func (t *EditTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if oldStr == "" {
		return toolError("old_string must not be empty")
	}
	if oldStr == newStr {
		return toolError("old_string and new_string are identical")
	}

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return toolError("%v", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError("file not found: %s", path)
		}
		return toolError("read %s: %v", path, err)
	}

	content := string(data)
	count := strings.Count(content, oldStr)
	switch {
	case count == 0:
		return toolError("old_string not found in %s", path)
	case count > 1 && !replaceAll:
		return toolError("old_string appears %d times in %s, pass replace_all or make it unique", count, path)
	}

	var updated string
	replaced := count
	if replaceAll {
		updated = strings.ReplaceAll(content, oldStr, newStr)
	} else {
		updated = strings.Replace(content, oldStr, newStr, 1)
		replaced = 1
	}
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return toolError("write %s: %v", path, err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("replaced %d occurrence(s) in %s", replaced, path)}, nil
}

// DeleteTool removes a single file. Directories are refused.
type DeleteTool struct {
	resolver *Resolver
}

func NewDeleteTool(resolver *Resolver) *DeleteTool {
	return &DeleteTool{resolver: resolver}
}

func (t *DeleteTool) Name() string        { return "delete_file" }
func (t *DeleteTool) Description() string { return "Delete a file from the workspace." }
func (t *DeleteTool) ReadOnly() bool      { return false }

func (t *DeleteTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Workspace-relative file path"},
		},
		"required":             []string{"path"},
		"additionalProperties": false,
	})
}

func (t *DeleteTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
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
		return toolError("%s is a directory, refusing to delete", path)
	}
	if err := os.Remove(resolved); err != nil {
		return toolError("delete %s: %v", path, err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("deleted %s", path)}, nil
}
