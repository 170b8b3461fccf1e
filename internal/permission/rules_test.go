package permission

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")
	rules := []Rule{
		{Tool: "bash", Action: "npm *", Decision: ActionAllow, CreatedAt: time.Now(), Persistent: true},
		{Tool: "write_file", PathPattern: "docs/*", Decision: ActionDeny, CreatedAt: time.Now(), Persistent: true},
	}

	if err := SaveRules(path, rules); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}

	loaded := LoadRules(path, nil)
	if len(loaded) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(loaded))
	}
	if loaded[0].Tool != "bash" || loaded[0].Action != "npm *" || loaded[0].Decision != ActionAllow {
		t.Errorf("rule did not round-trip: %+v", loaded[0])
	}
	if !loaded[1].Persistent {
		t.Error("loaded rules must be marked persistent")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if got := LoadRules(filepath.Join(t.TempDir(), "absent.json"), nil); got != nil {
		t.Fatalf("expected nil for missing file, got %v", got)
	}
}

func TestLoadRules_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadRules(path, nil); got != nil {
		t.Fatalf("malformed file must fail open to empty rules, got %v", got)
	}
}

func TestLoadRules_FiltersInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `[
		{"tool": "bash", "action": "git *", "decision": "allow"},
		{"tool": "", "decision": "allow"},
		{"tool": "bash", "decision": "maybe"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded := LoadRules(path, nil)
	if len(loaded) != 1 {
		t.Fatalf("expected invalid entries filtered, got %d rules", len(loaded))
	}
	if loaded[0].Action != "git *" {
		t.Errorf("kept the wrong rule: %+v", loaded[0])
	}
}
