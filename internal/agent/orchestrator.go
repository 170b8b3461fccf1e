// Package agent implements the turn orchestrator: the loop that streams
// model output, gates and executes tool calls, and maintains the
// conversation history for one interactive session.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"steward/internal/history"
	"steward/internal/observability"
	"steward/internal/permission"
	"steward/pkg/models"
)

// StopReason says how a turn ended.
type StopReason string

const (
	StopComplete  StopReason = "complete"
	StopCancelled StopReason = "cancelled"
	StopTurnLimit StopReason = "turn_limit"
	StopError     StopReason = "error"
)

// TurnResult summarizes one finished turn.
type TurnResult struct {
	StopReason StopReason
	FinalText  string
	Usage      models.Usage
	Iterations int
	ToolCalls  int
	Duration   time.Duration
}

// PermissionResponse is the user's answer to a permission prompt.
type PermissionResponse struct {
	Allowed         bool
	RememberSession bool
	Persistent      bool
}

// Callbacks is the presentation surface of the orchestrator. All fields
// are optional except OnPermissionRequest: if it is nil, every prompt is
// treated as denied. Callbacks are invoked synchronously from the turn
// goroutine, in stream order.
type Callbacks struct {
	OnTurnStart         func(turnIndex int)
	OnText              func(text string)
	OnThinking          func(text string)
	OnToolUse           func(call models.ToolCall)
	OnPermissionRequest func(req permission.Request) PermissionResponse
	OnToolResult        func(call models.ToolCall, result models.ToolResult)
	OnUsage             func(usage models.Usage)
	OnTurnComplete      func(result TurnResult)
	OnError             func(err error)
}

// Config carries the tunable parameters of the orchestrator.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
}

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 25
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
}

// Orchestrator drives turns. One turn runs at a time; Run rejects
// overlapping calls. Stop requests cooperative cancellation of the
// current turn without killing in-flight work.
type Orchestrator struct {
	provider  ModelProvider
	registry  *Registry
	engine    *permission.Engine
	recorder  *history.Recorder
	callbacks Callbacks
	metrics   *observability.Metrics
	logger    *slog.Logger
	config    Config

	mu       sync.Mutex
	messages []models.Message
	busy     atomic.Bool
	stopped  atomic.Bool
	turns    int
}

// New creates an orchestrator. Provider and registry are required; a nil
// engine gets default policy, a nil recorder gets a fresh one.
func New(provider ModelProvider, registry *Registry, engine *permission.Engine,
	recorder *history.Recorder, callbacks Callbacks, metrics *observability.Metrics,
	config Config, logger *slog.Logger) *Orchestrator {
	if engine == nil {
		engine = permission.NewEngine(nil, logger)
	}
	if recorder == nil {
		recorder = history.NewRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()
	return &Orchestrator{
		provider:  provider,
		registry:  registry,
		engine:    engine,
		recorder:  recorder,
		callbacks: callbacks,
		metrics:   metrics,
		logger:    logger,
		config:    config,
	}
}

// Stop requests cancellation of the running turn. The flag is checked
// between loop iterations and between tool calls; whatever is in flight
// is allowed to finish and its result is discarded. Safe to call when no
// turn is running.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// ClearHistory drops the conversation and the tool call record. Session
// permission memory is intentionally left alone. Refused while a turn is
// running.
func (o *Orchestrator) ClearHistory() error {
	if o.busy.Load() {
		return ErrTurnActive
	}
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
	o.recorder.Reset()
	return nil
}

// History returns a snapshot of the conversation so far.
func (o *Orchestrator) History() []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Message(nil), o.messages...)
}

// Run executes one full turn: user input in, streamed assistant output
// and tool execution until the model stops asking for tools, the
// iteration cap is hit, or the user cancels.
func (o *Orchestrator) Run(ctx context.Context, input models.UserInput) (TurnResult, error) {
	if o.provider == nil {
		return TurnResult{}, turnErr(PhaseInit, ErrNoProvider)
	}
	if !o.busy.CompareAndSwap(false, true) {
		return TurnResult{}, ErrTurnActive
	}
	defer o.busy.Store(false)
	o.stopped.Store(false)

	started := time.Now()
	o.mu.Lock()
	turnIndex := o.turns
	o.turns++
	o.messages = append(o.messages, userMessage(input))
	o.mu.Unlock()
	o.recorder.StartTurn()
	if o.callbacks.OnTurnStart != nil {
		o.callbacks.OnTurnStart(turnIndex)
	}

	result, err := o.loop(ctx)
	result.Duration = time.Since(started)

	if err != nil {
		result.StopReason = StopError
		o.logger.Error("turn failed", "turn", turnIndex, "error", err)
		if o.callbacks.OnError != nil {
			o.callbacks.OnError(err)
		}
	}
	if o.metrics != nil {
		o.metrics.ObserveTurn(string(result.StopReason), result.Duration)
		o.metrics.AddUsage(result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	if o.callbacks.OnTurnComplete != nil {
		o.callbacks.OnTurnComplete(result)
	}
	return result, err
}

func (o *Orchestrator) loop(ctx context.Context) (TurnResult, error) {
	var result TurnResult

	for iteration := 0; iteration < o.config.MaxIterations; iteration++ {
		if o.cancelled(ctx) {
			result.StopReason = StopCancelled
			return result, nil
		}
		result.Iterations++

		assistant, err := o.streamOnce(ctx, &result)
		if err != nil {
			return result, turnErr(PhaseStream, err)
		}
		o.appendMessage(assistant)
		result.FinalText = assistant.Content

		if len(assistant.ToolCalls) == 0 {
			result.StopReason = StopComplete
			return result, nil
		}
		if o.cancelled(ctx) {
			result.StopReason = StopCancelled
			return result, nil
		}

		if done := o.executeToolCalls(ctx, assistant.ToolCalls, &result); done {
			result.StopReason = StopCancelled
			return result, nil
		}
	}

	notice := fmt.Sprintf("Stopping after %d tool iterations in a single turn. Send another message to continue.", o.config.MaxIterations)
	if o.callbacks.OnText != nil {
		o.callbacks.OnText(notice)
	}
	o.appendMessage(models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   notice,
		CreatedAt: time.Now(),
	})
	result.FinalText = notice
	result.StopReason = StopTurnLimit
	return result, nil
}

// streamOnce performs one provider call, forwarding stream events to the
// callbacks and assembling the complete assistant message.
func (o *Orchestrator) streamOnce(ctx context.Context, result *TurnResult) (models.Message, error) {
	req := CompletionRequest{
		Model:     o.config.Model,
		System:    o.config.SystemPrompt,
		Messages:  o.History(),
		Tools:     o.registry.Definitions(),
		MaxTokens: o.config.MaxTokens,
	}

	chunks, err := o.provider.Complete(ctx, req)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		CreatedAt: time.Now(),
	}
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			return models.Message{}, chunk.Err
		case chunk.Text != "":
			msg.Content += chunk.Text
			if o.callbacks.OnText != nil {
				o.callbacks.OnText(chunk.Text)
			}
		case chunk.Thinking != "":
			if o.callbacks.OnThinking != nil {
				o.callbacks.OnThinking(chunk.Thinking)
			}
		case chunk.ToolCall != nil:
			msg.ToolCalls = append(msg.ToolCalls, *chunk.ToolCall)
		case chunk.Usage != nil:
			result.Usage.Add(*chunk.Usage)
			if o.callbacks.OnUsage != nil {
				o.callbacks.OnUsage(*chunk.Usage)
			}
		}
	}
	return msg, nil
}

// executeToolCalls runs the model's tool calls strictly in order, gating
// each through the permission engine and appending each result to the
// conversation before the next call is considered. Returns true if the
// turn was cancelled partway through.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []models.ToolCall, result *TurnResult) bool {
	for _, call := range calls {
		if o.cancelled(ctx) {
			return true
		}
		result.ToolCalls++

		if o.callbacks.OnToolUse != nil {
			o.callbacks.OnToolUse(call)
		}
		entry := o.recorder.StartToolUse(call.ID, call.Name, string(call.Input))

		toolResult := o.executeOne(ctx, call)

		// A stop during execution discards the result entirely.
		if o.cancelled(ctx) {
			o.recorder.EndToolUse(entry, "(discarded: turn cancelled)", true)
			return true
		}

		o.recorder.EndToolUse(entry, toolResult.Content, toolResult.IsError)
		if o.callbacks.OnToolResult != nil {
			o.callbacks.OnToolResult(call, toolResult)
		}
		o.appendMessage(models.Message{
			ID:          uuid.NewString(),
			Role:        models.RoleTool,
			ToolResults: []models.ToolResult{toolResult},
			CreatedAt:   time.Now(),
		})
	}
	return false
}

// executeOne validates, gates, and runs a single tool call. Every failure
// mode becomes an error result for the model rather than a turn failure.
func (o *Orchestrator) executeOne(ctx context.Context, call models.ToolCall) models.ToolResult {
	tool, ok := o.registry.Get(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}

	args, err := o.registry.ValidateArgs(call.Name, call.Input)
	if err != nil {
		return errorResult(call.ID, err.Error())
	}

	req := permission.Request{
		Tool:        call.Name,
		Args:        args,
		Description: describeCall(call.Name, args),
		ReadOnly:    tool.ReadOnly(),
	}
	decision := o.engine.Check(req)
	if decision.Action == permission.ActionAsk {
		decision = o.promptUser(req)
	}
	if o.metrics != nil {
		o.metrics.ObservePermission(call.Name, string(decision.Action))
	}
	if !decision.Allowed() {
		o.logger.Info("tool call denied", "tool", call.Name, "reason", decision.Reason)
		return errorResult(call.ID, "The user denied permission for this tool call.")
	}

	// A stop issued while the permission prompt was pending must keep the
	// call from running at all.
	if o.cancelled(ctx) {
		return errorResult(call.ID, "turn cancelled before execution")
	}

	started := time.Now()
	res, err := tool.Execute(ctx, args)
	if o.metrics != nil {
		o.metrics.ObserveToolCall(call.Name, err == nil && (res == nil || !res.IsError), time.Since(started))
	}
	if err != nil {
		o.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return errorResult(call.ID, err.Error())
	}
	if res == nil {
		res = &ToolResult{}
	}
	return models.ToolResult{ToolCallID: call.ID, Content: res.Content, IsError: res.IsError}
}

// promptUser turns an "ask" decision into a final allow or deny via the
// presentation callback, recording the user's choice in the engine.
func (o *Orchestrator) promptUser(req permission.Request) permission.Decision {
	if o.callbacks.OnPermissionRequest == nil {
		return permission.Decision{Action: permission.ActionDeny, Reason: "no prompt handler"}
	}
	resp := o.callbacks.OnPermissionRequest(req)
	o.engine.RecordDecision(req, resp.Allowed, resp.RememberSession, resp.Persistent)
	if resp.Allowed {
		return permission.Decision{Action: permission.ActionAllow, Reason: "approved by user"}
	}
	return permission.Decision{Action: permission.ActionDeny, Reason: "denied by user"}
}

func (o *Orchestrator) cancelled(ctx context.Context) bool {
	return o.stopped.Load() || ctx.Err() != nil
}

func (o *Orchestrator) appendMessage(msg models.Message) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()
}

func userMessage(input models.UserInput) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   input.Text,
		Blocks:    input.Blocks,
		CreatedAt: time.Now(),
	}
}

func errorResult(callID, message string) models.ToolResult {
	return models.ToolResult{ToolCallID: callID, Content: message, IsError: true}
}

func describeCall(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return fmt.Sprintf("%s %s", name, data)
}
