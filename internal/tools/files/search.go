package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"steward/internal/agent"
)

const (
	maxSearchResults  = 200
	maxSearchLineSize = 4 * 1024
)

// SearchTool greps workspace files for a regular expression.
type SearchTool struct {
	resolver *Resolver
}

func NewSearchTool(resolver *Resolver) *SearchTool {
	return &SearchTool{resolver: resolver}
}

func (t *SearchTool) Name() string { return "search" }
func (t *SearchTool) Description() string {
	return "Search workspace files for lines matching a regular expression."
}
func (t *SearchTool) ReadOnly() bool { return true }

func (t *SearchTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Go regular expression"},
			"path":    map[string]any{"type": "string", "description": "Directory to search, defaults to the workspace root"},
		},
		"required":             []string{"pattern"},
		"additionalProperties": false,
	})
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return toolError("invalid pattern: %v", err)
	}

	root, err := t.resolver.Resolve(stringArg(args, "path"))
	if err != nil {
		return toolError("%v", err)
	}

	var b strings.Builder
	hits := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		hits += t.searchFile(re, path, &b, maxSearchResults-hits)
		if hits >= maxSearchResults {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return toolError("search: %v", walkErr)
	}
	if hits == 0 {
		return &agent.ToolResult{Content: "no matches for " + pattern}, nil
	}
	out := strings.TrimRight(b.String(), "\n")
	if hits >= maxSearchResults {
		out += fmt.Sprintf("\n... (stopped at %d matches)", maxSearchResults)
	}
	return &agent.ToolResult{Content: out}, nil
}

// searchFile appends up to budget matching lines, skipping files that look
// binary (NUL in the first line read).
func (t *SearchTool) searchFile(re *regexp.Regexp, path string, b *strings.Builder, budget int) int {
	if budget <= 0 {
		return 0
	}
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	rel := t.resolver.Rel(path)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, maxSearchLineSize), maxSearchLineSize)
	hits := 0
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if line == 1 && strings.ContainsRune(text, '\x00') {
			return 0
		}
		if re.MatchString(text) {
			fmt.Fprintf(b, "%s:%d: %s\n", rel, line, text)
			hits++
			if hits >= budget {
				return hits
			}
		}
	}
	return hits
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
