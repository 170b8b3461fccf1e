package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry holds the tools available to the model. Registration compiles
// each tool's schema so malformed arguments are caught before the tool
// runs instead of inside it.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Registering a name twice or a tool with an
// uncompilable schema is a programming error and fails loudly.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(tool.Schema())); err != nil {
		return fmt.Errorf("tool %q schema: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("tool %q schema: %w", name, err)
	}

	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// MustRegister registers a tool and panics on failure. For wiring code
// where a bad schema means a broken build, not a runtime condition.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// IsReadOnly reports the registered tool's mutation classification.
// Unknown tools are treated as side-effecting.
func (r *Registry) IsReadOnly(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return ok && t.ReadOnly()
}

// Definitions returns provider-facing definitions for all tools, sorted
// by name for a stable request shape.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ValidateArgs decodes and schema-checks a raw argument object for the
// named tool, returning the decoded arguments on success.
func (r *Registry) ValidateArgs(name string, raw json.RawMessage) (map[string]any, error) {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("invalid arguments for %q: %w", name, err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("invalid arguments for %q: %w", name, err)
	}

	args, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments for %q must be an object", name)
	}
	return args, nil
}
