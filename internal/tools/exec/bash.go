// Package exec implements the shell execution tool.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"steward/internal/agent"
	"steward/internal/tasks"
)

const (
	defaultTimeout = 2 * time.Minute
	maxTimeout     = 10 * time.Minute
	maxOutputBytes = 64 * 1024
)

// BashTool runs a shell command in the workspace directory. Output is
// combined stdout and stderr, truncated to a display-safe size. With a
// task manager attached, commands can run in the background instead of
// blocking the turn.
type BashTool struct {
	workdir string
	tasks   *tasks.Manager
}

func NewBashTool(workdir string) *BashTool {
	return &BashTool{workdir: workdir}
}

// NewBackgroundBashTool creates a bash tool that accepts background: true
// to run the command as a tracked task.
func NewBackgroundBashTool(workdir string, manager *tasks.Manager) *BashTool {
	return &BashTool{workdir: workdir, tasks: manager}
}

func (t *BashTool) Name() string { return "bash" }
func (t *BashTool) Description() string {
	return "Run a shell command in the workspace and return its output."
}
func (t *BashTool) ReadOnly() bool { return false }

func (t *BashTool) Schema() json.RawMessage {
	properties := map[string]any{
		"command": map[string]any{"type": "string", "description": "Shell command to run"},
		"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds, default 120"},
	}
	if t.tasks != nil {
		properties["background"] = map[string]any{
			"type":        "boolean",
			"description": "Run the command as a background task and return its ID",
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             []string{"command"},
		"additionalProperties": false,
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return data
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return errResult("command must not be empty"), nil
	}

	if background, _ := args["background"].(bool); background && t.tasks != nil {
		return t.runBackground(command)
	}

	timeout := defaultTimeout
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = time.Duration(v) * time.Second
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.workdir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + fmt.Sprintf("\n... (truncated at %d bytes)", maxOutputBytes)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errResult("command timed out after %s\n%s", timeout, output), nil
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return errResult("exit status %d\n%s", exitErr.ExitCode(), output), nil
		}
		return errResult("command failed: %v\n%s", err, output), nil
	}
	if output == "" {
		output = "(no output)"
	}
	return &agent.ToolResult{Content: output}, nil
}

// runBackground hands the command to the task manager and returns
// immediately. The task context, not the turn context, governs the
// command's lifetime, so the command survives turn completion.
func (t *BashTool) runBackground(command string) (*agent.ToolResult, error) {
	task, err := t.tasks.Run("bash", command, func(ctx context.Context, out *tasks.Writer) error {
		cmd := exec.CommandContext(ctx, "bash", "-c", command)
		cmd.Dir = t.workdir
		cmd.Stdout = out
		cmd.Stderr = out
		return cmd.Run()
	}, nil)
	if err != nil {
		return errResult("start background task: %v", err), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("started background task %s for: %s", task.ID, command),
	}, nil
}

func errResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}
