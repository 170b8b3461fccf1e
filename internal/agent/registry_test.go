package agent

import (
	"encoding/json"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &fakeTool{name: "read_file", readOnly: true}
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if _, ok := r.Get("read_file"); !ok {
		t.Error("expected registered tool to be retrievable")
	}
	if !r.IsReadOnly("read_file") {
		t.Error("expected read-only classification")
	}
	if r.IsReadOnly("missing") {
		t.Error("unknown tools must be treated as side-effecting")
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"write_file", "bash", "read_file"} {
		if err := r.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	defs := r.Definitions()
	want := []string{"bash", "read_file", "write_file"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Fatalf("expected sorted definitions %v, got %s at %d", want, d.Name, i)
		}
	}
}

func TestRegistry_ValidateArgs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "read_file"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"path":"main.go"}`, false},
		{"empty object from empty input", ``, false},
		{"wrong type", `{"path":42}`, true},
		{"unexpected field", `{"nope":true}`, true},
		{"not an object", `[1,2]`, true},
		{"malformed json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ValidateArgs("read_file", json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}

	if _, err := r.ValidateArgs("missing", json.RawMessage(`{}`)); err == nil {
		t.Error("expected unknown tool to fail validation")
	}
}
