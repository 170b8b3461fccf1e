package permission

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadRules reads the persisted rule file. An unreadable or malformed
// file is treated as an empty rule set: the engine fails open to "ask"
// rather than refusing to start.
func LoadRules(path string, logger *slog.Logger) []Rule {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read rule file, starting with empty rules", "path", path, "error", err)
		}
		return nil
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		logger.Warn("malformed rule file, starting with empty rules", "path", path, "error", err)
		return nil
	}
	out := rules[:0]
	for _, r := range rules {
		if r.Tool == "" {
			continue
		}
		if r.Decision != ActionAllow && r.Decision != ActionDeny {
			continue
		}
		r.Persistent = true
		out = append(out, r)
	}
	return out
}

// SaveRules writes the rule list to the rule file, creating parent
// directories as needed. The write goes through a temp file and rename so
// a crash cannot leave a half-written file behind.
func SaveRules(path string, rules []Rule) error {
	if rules == nil {
		rules = []Rule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
