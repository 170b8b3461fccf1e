package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"steward/internal/agent"
	"steward/internal/config"
	"steward/internal/history"
	"steward/internal/observability"
	"steward/internal/permission"
	"steward/internal/sessions"
	"steward/internal/tasks"
	"steward/pkg/models"
)

type replOptions struct {
	config   *config.Config
	logger   *slog.Logger
	registry *agent.Registry
	engine   *permission.Engine
	provider agent.ModelProvider
	recorder *history.Recorder
	tasks    *tasks.Manager
	store    sessions.Store
	metrics  *observability.Metrics
}

type repl struct {
	opts         replOptions
	orchestrator *agent.Orchestrator
	reader       *bufio.Reader
	out          io.Writer
	sessionID    string
	persisted    int
}

func newREPL(opts replOptions) *repl {
	r := &repl{
		opts:   opts,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	r.orchestrator = agent.New(
		opts.provider,
		opts.registry,
		opts.engine,
		opts.recorder,
		agent.Callbacks{
			OnText:              func(text string) { fmt.Fprint(r.out, text) },
			OnToolUse:           r.printToolUse,
			OnPermissionRequest: r.promptPermission,
			OnToolResult:        r.printToolResult,
			OnTurnComplete:      r.printTurnSummary,
			OnError:             func(err error) { fmt.Fprintf(r.out, "\nerror: %v\n", err) },
		},
		opts.metrics,
		agent.Config{
			Model:         opts.config.Model.Name,
			SystemPrompt:  opts.config.Agent.SystemPrompt,
			MaxIterations: opts.config.Agent.MaxIterations,
			MaxTokens:     opts.config.Model.MaxTokens,
		},
		opts.logger,
	)
	return r
}

func (r *repl) run(ctx context.Context) error {
	// Ctrl-C stops the current turn; it does not kill the REPL.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			r.orchestrator.Stop()
			fmt.Fprintln(r.out, "\n(stopping after current operation)")
		}
	}()

	fmt.Fprintln(r.out, "steward ready. Type a message, or /help for commands.")
	for {
		fmt.Fprint(r.out, "\n> ")
		line, err := r.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return r.shutdown()
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(line); quit {
				return r.shutdown()
			}
			continue
		}

		if _, err := r.orchestrator.Run(ctx, models.TextInput(line)); err != nil {
			if errors.Is(err, agent.ErrTurnActive) {
				fmt.Fprintln(r.out, "a turn is already running")
				continue
			}
			fmt.Fprintf(r.out, "turn failed: %v\n", err)
		}
		r.persistTurn(ctx, line)
		fmt.Fprintln(r.out)
	}
}

// persistTurn appends the messages produced since the last flush to the
// session store. Persistence failures are logged, never fatal.
func (r *repl) persistTurn(ctx context.Context, firstLine string) {
	if r.opts.store == nil {
		return
	}
	if r.sessionID == "" {
		title := firstLine
		if len(title) > 60 {
			title = title[:60]
		}
		sess, err := r.opts.store.Create(ctx, title)
		if err != nil {
			r.opts.logger.Warn("failed to create session", "error", err)
			return
		}
		r.sessionID = sess.ID
	}
	msgs := r.orchestrator.History()
	if len(msgs) <= r.persisted {
		return
	}
	if err := r.opts.store.AppendMessages(ctx, r.sessionID, msgs[r.persisted:]); err != nil {
		r.opts.logger.Warn("failed to persist turn", "error", err)
		return
	}
	r.persisted = len(msgs)
}

func (r *repl) handleCommand(line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		if err := r.orchestrator.ClearHistory(); err != nil {
			fmt.Fprintf(r.out, "cannot clear: %v\n", err)
			break
		}
		r.sessionID = ""
		r.persisted = 0
		fmt.Fprintln(r.out, "history cleared")
	case "/sessions":
		list, err := r.opts.store.List(context.Background())
		if err != nil {
			fmt.Fprintf(r.out, "list sessions: %v\n", err)
			break
		}
		for _, sess := range list {
			fmt.Fprintf(r.out, "  %s  %s  %s\n", sess.ID[:8], sess.UpdatedAt.Format("2006-01-02 15:04"), sess.Title)
		}
	case "/verbose":
		verbose := !r.opts.recorder.Verbose()
		r.opts.recorder.SetVerbose(verbose)
		fmt.Fprintf(r.out, "verbose tool output: %v\n", verbose)
	case "/tools":
		view := r.opts.recorder.CurrentTurn()
		for _, e := range view.Entries {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			fmt.Fprintf(r.out, "  %s [%s] %s\n", e.Tool, status, history.DisplayValue(e.Input))
		}
		if view.HiddenCount > 0 {
			fmt.Fprintf(r.out, "  ... %d more (use /verbose)\n", view.HiddenCount)
		}
	case "/tasks":
		for _, task := range r.opts.tasks.All() {
			label := task.Name
			if task.Description != "" {
				label += ": " + task.Description
			}
			fmt.Fprintf(r.out, "  %s %-8s %s\n", task.ID[:8], task.Status, label)
		}
	case "/abort":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: /abort <task-id-prefix>")
			break
		}
		if task, ok := r.findTask(fields[1]); ok && r.opts.tasks.Abort(task.ID) {
			fmt.Fprintf(r.out, "aborted %s\n", task.Name)
		} else {
			fmt.Fprintln(r.out, "no matching live task")
		}
	case "/output":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: /output <task-id-prefix>")
			break
		}
		if task, ok := r.findTask(fields[1]); ok {
			out, _ := r.opts.tasks.Output(task.ID)
			fmt.Fprintln(r.out, out)
		} else {
			fmt.Fprintln(r.out, "no matching task")
		}
	case "/rules":
		for _, rule := range r.opts.engine.Rules() {
			target := rule.Action
			if target == "" {
				target = rule.PathPattern
			}
			fmt.Fprintf(r.out, "  %s %s %q (used %d times)\n", rule.Decision, rule.Tool, target, rule.UsageCount)
		}
	case "/help":
		fmt.Fprintln(r.out, "commands: /clear /verbose /tools /tasks /abort /output /rules /sessions /quit")
	default:
		fmt.Fprintf(r.out, "unknown command %s\n", fields[0])
	}
	return false
}

// promptPermission asks the user to approve one tool call. Answers:
// y (once), n (deny), s (allow for session), a (always, persisted).
func (r *repl) promptPermission(req permission.Request) agent.PermissionResponse {
	fmt.Fprintf(r.out, "\nallow %s? [y/n/s/a] ", req.Description)
	line, err := r.reader.ReadString('\n')
	if err != nil {
		return agent.PermissionResponse{}
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return agent.PermissionResponse{Allowed: true}
	case "s", "session":
		return agent.PermissionResponse{Allowed: true, RememberSession: true}
	case "a", "always":
		return agent.PermissionResponse{Allowed: true, RememberSession: true, Persistent: true}
	default:
		return agent.PermissionResponse{Allowed: false}
	}
}

func (r *repl) printToolUse(call models.ToolCall) {
	fmt.Fprintf(r.out, "\n[%s] %s\n", call.Name, history.DisplayValue(string(call.Input)))
}

func (r *repl) printToolResult(call models.ToolCall, result models.ToolResult) {
	if result.IsError {
		fmt.Fprintf(r.out, "[%s] error: %s\n", call.Name, firstLine(result.Content))
	}
}

func (r *repl) printTurnSummary(result agent.TurnResult) {
	if result.ToolCalls == 0 {
		return
	}
	fmt.Fprintf(r.out, "\n(%d tool calls, %d tokens, %s)\n",
		result.ToolCalls, result.Usage.Total(), result.Duration.Round(10*time.Millisecond))
}

// shutdown flushes persistent permission rules before exit.
func (r *repl) shutdown() error {
	rules := r.opts.engine.PersistentRules()
	if len(rules) == 0 {
		return nil
	}
	if err := permission.SaveRules(r.opts.config.Storage.RulesPath, rules); err != nil {
		r.opts.logger.Warn("failed to save permission rules", "error", err)
	}
	return nil
}

func (r *repl) findTask(prefix string) (tasks.Task, bool) {
	for _, task := range r.opts.tasks.All() {
		if strings.HasPrefix(task.ID, prefix) {
			return task, true
		}
	}
	return tasks.Task{}, false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
