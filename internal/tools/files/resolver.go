// Package files implements the workspace file tools.
package files

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolver maps tool-supplied paths onto the workspace root and rejects
// anything that resolves outside it.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at the given directory.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the workspace root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve turns a relative or absolute path into an absolute path inside
// the workspace. Paths that escape the root (via .. or an absolute path
// elsewhere) are rejected.
func (r *Resolver) Resolve(path string) (string, error) {
	if path == "" || path == "." {
		return r.root, nil
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	p = filepath.Clean(p)
	if p != r.root && !strings.HasPrefix(p, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return p, nil
}

// Rel returns the workspace-relative form of an already resolved path.
func (r *Resolver) Rel(resolved string) string {
	rel, err := filepath.Rel(r.root, resolved)
	if err != nil {
		return resolved
	}
	return rel
}
