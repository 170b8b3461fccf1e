// Package permission implements the decision engine that gates
// side-effecting tool calls behind session and persistent policy rules.
package permission

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Action is the outcome of a permission check.
type Action string

const (
	// ActionAllow permits the tool call to execute.
	ActionAllow Action = "allow"
	// ActionDeny refuses the tool call.
	ActionDeny Action = "deny"
	// ActionAsk defers the decision to the human (via the presentation layer).
	ActionAsk Action = "ask"
)

// Request describes one proposed tool call to be evaluated.
type Request struct {
	// Tool is the tool name (e.g. "bash", "write_file").
	Tool string

	// Args is the decoded argument object of the proposed call.
	Args map[string]any

	// Description is a human-readable summary shown when asking.
	Description string

	// ReadOnly is the registry's classification of the tool. The engine
	// treats it as equivalent to membership in its configured read-only set.
	ReadOnly bool
}

// Rule is a stored policy entry. Session-scoped rules live only in the
// engine's session memory; persistent rules survive restarts via the
// rule file (see rules.go).
type Rule struct {
	Tool        string    `json:"tool"`
	Action      string    `json:"action,omitempty"`
	PathPattern string    `json:"pathPattern,omitempty"`
	Decision    Action    `json:"decision"`
	CreatedAt   time.Time `json:"createdAt"`
	UsageCount  int       `json:"usageCount"`
	Persistent  bool      `json:"persistent"`
}

func (r Rule) key() string {
	return r.Tool + "\x00" + r.Action + "\x00" + r.PathPattern
}

// Decision is the pure output of Check. It is never stored.
type Decision struct {
	Action Action
	Rule   *Rule
	Reason string
}

// Allowed reports whether the decision permits execution outright.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Config controls the fixed evaluation steps of the engine.
type Config struct {
	// AlwaysAllow lists tools allowed unconditionally, ahead of any rule.
	AlwaysAllow []string `yaml:"always_allow"`

	// AlwaysAsk lists tools that require confirmation when no earlier
	// step decided (default: shell execution and file mutation).
	AlwaysAsk []string `yaml:"always_ask"`

	// ReadOnlyTools lists tools classified as incapable of mutating
	// project state.
	ReadOnlyTools []string `yaml:"read_only_tools"`

	// AutoAllowReadOnly allows read-only tools without asking.
	AutoAllowReadOnly bool `yaml:"auto_allow_read_only"`

	// Default applies when no other step matches: allow, deny, or ask.
	Default Action `yaml:"default"`
}

// DefaultConfig returns the canonical policy set.
func DefaultConfig() *Config {
	return &Config{
		AlwaysAsk:         []string{"bash", "write_file", "edit_file", "delete_file"},
		ReadOnlyTools:     []string{"read_file", "list_dir", "glob", "search", "fetch"},
		AutoAllowReadOnly: true,
		Default:           ActionAsk,
	}
}

// Engine evaluates permission requests against accumulated session and
// persistent rule state. Check is side-effect free apart from rule usage
// counters; state changes flow through RecordDecision and AddRule only.
type Engine struct {
	mu      sync.Mutex
	config  *Config
	rules   []*Rule
	session map[string]bool
	logger  *slog.Logger
}

// NewEngine creates an engine with the given config. A nil config uses
// DefaultConfig.
func NewEngine(config *Config, logger *slog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := *config
	if cfg.Default == "" {
		cfg.Default = ActionAsk
	}
	return &Engine{
		config:  &cfg,
		session: make(map[string]bool),
		logger:  logger,
	}
}

// Check evaluates a request. Evaluation order, first match wins:
// session memory, always-allow set, read-only auto-allow, explicit rules
// in insertion order, always-ask set, configured default.
func (e *Engine) Check(req Request) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := DeriveKey(req)
	if allowed, ok := e.session[key]; ok {
		if allowed {
			return Decision{Action: ActionAllow, Reason: "allowed for this session"}
		}
		return Decision{Action: ActionDeny, Reason: "denied for this session"}
	}

	if containsPattern(e.config.AlwaysAllow, req.Tool) {
		return Decision{Action: ActionAllow, Reason: "tool is always allowed"}
	}

	if e.config.AutoAllowReadOnly && (req.ReadOnly || containsPattern(e.config.ReadOnlyTools, req.Tool)) {
		return Decision{Action: ActionAllow, Reason: "read-only tool"}
	}

	for _, rule := range e.rules {
		if ruleMatches(rule, req) {
			rule.UsageCount++
			if rule.Decision == ActionAllow {
				return Decision{Action: ActionAllow, Rule: rule, Reason: "allowed by rule"}
			}
			return Decision{Action: ActionDeny, Rule: rule, Reason: "denied by rule"}
		}
	}

	if containsPattern(e.config.AlwaysAsk, req.Tool) {
		return Decision{Action: ActionAsk, Reason: "tool requires confirmation"}
	}

	switch e.config.Default {
	case ActionAllow:
		return Decision{Action: ActionAllow, Reason: "default policy"}
	case ActionDeny:
		return Decision{Action: ActionDeny, Reason: "default policy"}
	default:
		return Decision{Action: ActionAsk, Reason: "default policy"}
	}
}

// RecordDecision stores the outcome of a resolved request. With
// rememberSession the derived key is cached for the rest of the process;
// with persistent a Rule is additionally constructed (replacing any rule
// with the same tool/action/path key) for the caller to flush to the rule
// file. Persistent implies session memory as well.
func (e *Engine) RecordDecision(req Request, allowed, rememberSession, persistent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rememberSession || persistent {
		e.session[DeriveKey(req)] = allowed
	}

	if persistent {
		decision := ActionDeny
		if allowed {
			decision = ActionAllow
		}
		rule := &Rule{
			Tool:       req.Tool,
			Decision:   decision,
			CreatedAt:  time.Now(),
			Persistent: true,
		}
		switch {
		case req.Tool == "bash":
			// Scope the persisted rule to the first command token, the
			// same granularity the session key uses.
			if fields := strings.Fields(commandArg(req)); len(fields) > 0 {
				rule.Action = fields[0] + " *"
			}
		case pathArg(req) != "":
			rule.PathPattern = pathArg(req)
		}
		e.upsertLocked(rule)
	}
}

// AddRule inserts a rule, replacing any existing rule with the same
// (tool, action, pathPattern) key in place.
func (e *Engine) AddRule(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := rule
	e.upsertLocked(&r)
}

func (e *Engine) upsertLocked(rule *Rule) {
	for i, existing := range e.rules {
		if existing.key() == rule.key() {
			e.rules[i] = rule
			return
		}
	}
	e.rules = append(e.rules, rule)
}

// Rules returns a snapshot of all rules in insertion order.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = *r
	}
	return out
}

// PersistentRules returns a snapshot of rules marked persistent, in
// insertion order, for flushing to the rule file.
func (e *Engine) PersistentRules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Rule
	for _, r := range e.rules {
		if r.Persistent {
			out = append(out, *r)
		}
	}
	return out
}

// ResetSession clears session-scoped memory. Persistent rules are kept.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = make(map[string]bool)
}

// DeriveKey builds the session-memory key for a request: the tool name
// plus a discriminator. For shell execution the discriminator is the first
// whitespace-delimited token of the command, so "allow for this session"
// on bash is scoped to that command prefix. Path-based tools use the path
// argument.
func DeriveKey(req Request) string {
	switch {
	case req.Tool == "bash":
		if cmd := commandArg(req); cmd != "" {
			if fields := strings.Fields(cmd); len(fields) > 0 {
				return req.Tool + ":" + fields[0]
			}
		}
		return req.Tool
	case pathArg(req) != "":
		return req.Tool + ":" + pathArg(req)
	default:
		return req.Tool
	}
}

func commandArg(req Request) string {
	if v, ok := req.Args["command"].(string); ok {
		return v
	}
	return ""
}

func pathArg(req Request) string {
	if v, ok := req.Args["path"].(string); ok {
		return v
	}
	return ""
}

func ruleMatches(rule *Rule, req Request) bool {
	if !matchPattern(rule.Tool, req.Tool) {
		return false
	}
	if rule.Action != "" && !matchPattern(rule.Action, commandArg(req)) {
		return false
	}
	if rule.PathPattern != "" && !matchPattern(rule.PathPattern, pathArg(req)) {
		return false
	}
	return true
}

func containsPattern(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}

// matchPattern implements the rule glob semantics: "*" matches any run of
// characters; a pattern without "*" matches by exact equality or prefix.
func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value || strings.HasPrefix(value, pattern)
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for i := 1; i < len(parts); i++ {
		part := parts[i]
		if part == "" {
			if i == len(parts)-1 {
				return true
			}
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		if i == len(parts)-1 {
			return strings.HasSuffix(value, part)
		}
		value = value[idx+len(part):]
	}
	return true
}
