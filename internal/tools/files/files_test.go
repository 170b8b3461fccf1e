package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"steward/internal/agent"
)

func newWorkspace(t *testing.T, tree map[string]string) *Resolver {
	t.Helper()
	root := t.TempDir()
	for path, content := range tree {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func run(t *testing.T, tool agent.Tool, args map[string]any) *agent.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("%s: unexpected Go error: %v", tool.Name(), err)
	}
	return res
}

func TestResolver_RejectsEscapes(t *testing.T) {
	r := newWorkspace(t, nil)

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"main.go", false},
		{"a/b/c.go", false},
		{".", false},
		{"", false},
		{"../outside", true},
		{"a/../../outside", true},
		{"/etc/passwd", true},
	}
	for _, tt := range tests {
		_, err := r.Resolve(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestReadTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{
		"main.go": "line1\nline2\nline3\nline4\n",
	})
	tool := NewReadTool(r)

	res := run(t, tool, map[string]any{"path": "main.go"})
	if res.IsError || !strings.Contains(res.Content, "line3") {
		t.Errorf("unexpected result %+v", res)
	}

	res = run(t, tool, map[string]any{"path": "main.go", "offset": float64(2), "limit": float64(2)})
	if res.Content != "line2\nline3" {
		t.Errorf("windowed read = %q", res.Content)
	}

	res = run(t, tool, map[string]any{"path": "missing.go"})
	if !res.IsError || !strings.Contains(res.Content, "not found") {
		t.Errorf("expected not-found error result, got %+v", res)
	}

	res = run(t, tool, map[string]any{"path": "../escape"})
	if !res.IsError {
		t.Error("expected escape to be rejected")
	}
}

func TestWriteTool(t *testing.T) {
	r := newWorkspace(t, nil)
	tool := NewWriteTool(r)

	res := run(t, tool, map[string]any{"path": "deep/dir/new.txt", "content": "hello"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.Content)
	}
	data, err := os.ReadFile(filepath.Join(r.Root(), "deep/dir/new.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("file content = %q, err %v", data, err)
	}
}

func TestEditTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{
		"config.yaml": "port: 8080\nhost: local\nport: 8080\n",
	})
	tool := NewEditTool(r)

	// Ambiguous without replace_all.
	res := run(t, tool, map[string]any{"path": "config.yaml", "old_string": "port: 8080", "new_string": "port: 9090"})
	if !res.IsError || !strings.Contains(res.Content, "2 times") {
		t.Errorf("expected ambiguity error, got %+v", res)
	}

	res = run(t, tool, map[string]any{"path": "config.yaml", "old_string": "port: 8080", "new_string": "port: 9090", "replace_all": true})
	if res.IsError {
		t.Fatalf("edit failed: %s", res.Content)
	}
	data, _ := os.ReadFile(filepath.Join(r.Root(), "config.yaml"))
	if strings.Contains(string(data), "8080") {
		t.Errorf("replace_all left old text: %q", data)
	}

	res = run(t, tool, map[string]any{"path": "config.yaml", "old_string": "nope", "new_string": "x"})
	if !res.IsError || !strings.Contains(res.Content, "not found") {
		t.Errorf("expected not-found error, got %+v", res)
	}
}

func TestDeleteTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{"junk.txt": "x", "dir/keep.txt": "y"})
	tool := NewDeleteTool(r)

	res := run(t, tool, map[string]any{"path": "junk.txt"})
	if res.IsError {
		t.Fatalf("delete failed: %s", res.Content)
	}
	if _, err := os.Stat(filepath.Join(r.Root(), "junk.txt")); !os.IsNotExist(err) {
		t.Error("file still exists")
	}

	res = run(t, tool, map[string]any{"path": "dir"})
	if !res.IsError || !strings.Contains(res.Content, "directory") {
		t.Errorf("expected directory refusal, got %+v", res)
	}
}

func TestListDirTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{"a.go": "", "sub/b.go": ""})
	tool := NewListDirTool(r)

	res := run(t, tool, map[string]any{})
	if res.IsError {
		t.Fatalf("list failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "a.go") || !strings.Contains(res.Content, "sub/") {
		t.Errorf("unexpected listing %q", res.Content)
	}
}

func TestGlobTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{
		"main.go":            "",
		"internal/a/deep.go": "",
		"docs/readme.md":     "",
	})
	tool := NewGlobTool(r)

	res := run(t, tool, map[string]any{"pattern": "**/*.go"})
	if !strings.Contains(res.Content, "main.go") || !strings.Contains(res.Content, filepath.Join("internal", "a", "deep.go")) {
		t.Errorf("** glob missed files: %q", res.Content)
	}
	if strings.Contains(res.Content, "readme.md") {
		t.Errorf("glob matched wrong extension: %q", res.Content)
	}

	res = run(t, tool, map[string]any{"pattern": "*.go"})
	if strings.Contains(res.Content, "deep.go") {
		t.Errorf("single-star glob must not cross segments: %q", res.Content)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "pkg/main.go", false},
		{"**/*.go", "pkg/a/b/main.go", true},
		{"**/*.go", "main.go", true},
		{"internal/**", "internal/x/y.go", true},
		{"internal/**", "cmd/x.go", false},
		{"docs/*.md", "docs/readme.md", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.rel); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.rel, got, tt.want)
		}
	}
}

func TestSearchTool(t *testing.T) {
	r := newWorkspace(t, map[string]string{
		"a.go": "func Hello() {}\nvar x = 1\n",
		"b.go": "func World() {}\n",
	})
	tool := NewSearchTool(r)

	res := run(t, tool, map[string]any{"pattern": `func \w+\(`})
	if res.IsError {
		t.Fatalf("search failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "a.go:1") || !strings.Contains(res.Content, "b.go:1") {
		t.Errorf("unexpected search output %q", res.Content)
	}

	res = run(t, tool, map[string]any{"pattern": "zzz_nothing"})
	if !strings.Contains(res.Content, "no matches") {
		t.Errorf("expected no-match message, got %q", res.Content)
	}

	res = run(t, tool, map[string]any{"pattern": "("})
	if !res.IsError {
		t.Error("expected invalid regexp to produce an error result")
	}
}
