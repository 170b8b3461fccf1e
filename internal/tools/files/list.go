package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"steward/internal/agent"
)

// maxListEntries bounds directory listings and glob results.
const maxListEntries = 500

// skipDirs are directories never descended into during glob and search.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// ListDirTool lists the entries of one directory.
type ListDirTool struct {
	resolver *Resolver
}

func NewListDirTool(resolver *Resolver) *ListDirTool {
	return &ListDirTool{resolver: resolver}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List the entries of a workspace directory." }
func (t *ListDirTool) ReadOnly() bool      { return true }

func (t *ListDirTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory to list, defaults to the workspace root"},
		},
		"additionalProperties": false,
	})
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	path, _ := args["path"].(string)
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return toolError("%v", err)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError("directory not found: %s", path)
		}
		return toolError("list %s: %v", path, err)
	}

	var b strings.Builder
	for i, entry := range entries {
		if i >= maxListEntries {
			fmt.Fprintf(&b, "... (%d more entries)\n", len(entries)-maxListEntries)
			break
		}
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return &agent.ToolResult{Content: "(empty directory)"}, nil
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// GlobTool finds files whose workspace-relative path matches a glob
// pattern. "*" matches within a path segment, "**" matches across
// segments.
type GlobTool struct {
	resolver *Resolver
}

func NewGlobTool(resolver *Resolver) *GlobTool {
	return &GlobTool{resolver: resolver}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern." }
func (t *GlobTool) ReadOnly() bool      { return true }

func (t *GlobTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern, e.g. internal/**/*.go"},
		},
		"required":             []string{"pattern"},
		"additionalProperties": false,
	})
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return toolError("pattern must not be empty")
	}

	var matches []string
	err := filepath.WalkDir(t.resolver.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel := t.resolver.Rel(path)
		if matchGlob(pattern, filepath.ToSlash(rel)) {
			matches = append(matches, rel)
			if len(matches) >= maxListEntries {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return toolError("glob %s: %v", pattern, err)
	}
	if len(matches) == 0 {
		return &agent.ToolResult{Content: "no files match " + pattern}, nil
	}
	sort.Strings(matches)
	return &agent.ToolResult{Content: strings.Join(matches, "\n")}, nil
}

// matchGlob matches a slash-separated relative path against a pattern.
// A "**" segment matches zero or more whole segments; other segments use
// path.Match semantics.
func matchGlob(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		for skip := 0; skip <= len(parts); skip++ {
			if matchSegments(pat[1:], parts[skip:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}
