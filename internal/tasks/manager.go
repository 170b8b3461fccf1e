// Package tasks runs background operations concurrently with the
// conversation and tracks their lifecycle for later inspection.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"steward/internal/observability"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusError
}

// Task is a snapshot of one background operation. Output accumulates
// incrementally while the task runs and is readable at any time.
type Task struct {
	ID          string
	Name        string
	Description string
	Status      Status
	Output      string
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Operation is the work a task performs. It receives a context that is
// cancelled on Abort or Close, and a sink for incremental output. The
// returned error moves the task to StatusError.
type Operation func(ctx context.Context, out *Writer) error

// Writer is the output sink handed to an operation. Appends are safe to
// interleave with snapshot reads from other goroutines.
type Writer struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Write appends p to the task output.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Printf appends a formatted line to the task output.
func (w *Writer) Printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(&w.buf, format, args...)
}

func (w *Writer) snapshot() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

type record struct {
	task   Task
	out    *Writer
	cancel context.CancelFunc
	done   func(Task)
}

// Manager owns all background tasks for one process. Finished tasks are
// retained (bounded) so their output stays inspectable after completion.
type Manager struct {
	mu          sync.Mutex
	records     map[string]*record
	order       []string
	maxRetained int
	logger      *slog.Logger
	metrics     *observability.Metrics
	wg          sync.WaitGroup
	closed      bool
	stopSweep   chan struct{}
}

const (
	defaultMaxRetained = 50
	sweepInterval      = 5 * time.Minute
)

// NewManager creates a task manager and starts its retention sweeper.
// Metrics may be nil.
func NewManager(logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		records:     make(map[string]*record),
		maxRetained: defaultMaxRetained,
		logger:      logger,
		metrics:     metrics,
		stopSweep:   make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Run registers a task and starts op in its own goroutine. The returned
// snapshot reflects the task in its pending state; the transition to
// running happens as the goroutine begins. done, if non-nil, is invoked
// once with the terminal snapshot.
func (m *Manager) Run(name, description string, op Operation, done func(Task)) (Task, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Task{}, fmt.Errorf("task manager is closed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &record{
		task: Task{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			Status:      StatusPending,
			CreatedAt:   time.Now(),
		},
		out:    &Writer{},
		cancel: cancel,
		done:   done,
	}
	m.records[rec.task.ID] = rec
	m.order = append(m.order, rec.task.ID)
	snapshot := rec.task
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TaskStarted()
	}
	m.wg.Add(1)
	go m.execute(ctx, rec.task.ID, op)

	m.logger.Info("background task started", "task_id", snapshot.ID, "name", name)
	return snapshot, nil
}

func (m *Manager) execute(ctx context.Context, id string, op Operation) {
	defer m.wg.Done()

	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok || rec.task.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	rec.task.Status = StatusRunning
	rec.task.StartedAt = time.Now()
	out := rec.out
	m.mu.Unlock()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
				m.logger.Error("background task panic", "task_id", id, "panic", r)
			}
		}()
		err = op(ctx, out)
	}()

	m.finalize(id, err)
}

// finalize moves a running task to its terminal state. A task already
// finished (e.g. by Abort) is left untouched so abort outcomes are stable.
func (m *Manager) finalize(id string, err error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok || rec.task.Status.Finished() {
		m.mu.Unlock()
		return
	}
	rec.task.CompletedAt = time.Now()
	if err != nil {
		rec.task.Status = StatusError
		rec.task.Error = err.Error()
	} else {
		rec.task.Status = StatusComplete
	}
	snapshot := m.snapshotLocked(rec)
	done := rec.done
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("background task failed", "task_id", id, "error", err)
	} else {
		m.logger.Info("background task complete", "task_id", id)
	}
	if m.metrics != nil {
		m.metrics.TaskFinished()
	}
	m.notifyDone(done, snapshot)
}

// Abort cancels a pending or running task. The task moves to StatusError
// with a descriptive error; the operation's context is cancelled and its
// eventual return is ignored. Aborting a finished task is a no-op.
func (m *Manager) Abort(id string) bool {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok || rec.task.Status.Finished() {
		m.mu.Unlock()
		return false
	}
	rec.task.Status = StatusError
	rec.task.Error = "aborted"
	rec.task.CompletedAt = time.Now()
	snapshot := m.snapshotLocked(rec)
	done := rec.done
	cancel := rec.cancel
	m.mu.Unlock()

	cancel()
	m.logger.Info("background task aborted", "task_id", id)
	if m.metrics != nil {
		m.metrics.TaskFinished()
	}
	m.notifyDone(done, snapshot)
	return true
}

// notifyDone invokes a task's completion callback. A panicking callback
// must not take the manager's goroutine down with it.
func (m *Manager) notifyDone(done func(Task), task Task) {
	if done == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("task completion callback panicked", "task_id", task.ID, "panic", r)
		}
	}()
	done(task)
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Task{}, false
	}
	return m.snapshotLocked(rec), true
}

// Output returns the accumulated output of a task, including output of a
// still-running task.
func (m *Manager) Output(id string) (string, bool) {
	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	return rec.out.snapshot(), true
}

// All returns snapshots of every tracked task in creation order.
func (m *Manager) All() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.records[id]; ok {
			out = append(out, m.snapshotLocked(rec))
		}
	}
	return out
}

// ByStatus returns snapshots of tasks in the given state, in creation order.
func (m *Manager) ByStatus(status Status) []Task {
	var out []Task
	for _, t := range m.All() {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// ClearFinished drops all finished tasks and returns how many were removed.
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	kept := m.order[:0]
	for _, id := range m.order {
		rec := m.records[id]
		if rec != nil && rec.task.Status.Finished() {
			delete(m.records, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// CancelAll aborts every pending or running task.
func (m *Manager) CancelAll() {
	for _, t := range m.All() {
		if !t.Status.Finished() {
			m.Abort(t.ID)
		}
	}
}

// Close aborts all live tasks, stops the sweeper, and waits for task
// goroutines to unwind.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopSweep)
	m.mu.Unlock()

	m.CancelAll()
	m.wg.Wait()
}

func (m *Manager) snapshotLocked(rec *record) Task {
	t := rec.task
	t.Output = rec.out.snapshot()
	return t
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

// sweep evicts the oldest finished tasks beyond the retention cap. Live
// tasks are never evicted.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var finished []string
	for _, id := range m.order {
		if rec := m.records[id]; rec != nil && rec.task.Status.Finished() {
			finished = append(finished, id)
		}
	}
	excess := len(finished) - m.maxRetained
	if excess <= 0 {
		return
	}
	sort.SliceStable(finished, func(i, j int) bool {
		return m.records[finished[i]].task.CompletedAt.Before(m.records[finished[j]].task.CompletedAt)
	})
	evict := make(map[string]bool, excess)
	for _, id := range finished[:excess] {
		evict[id] = true
		delete(m.records, id)
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if !evict[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	m.logger.Debug("evicted finished tasks", "count", excess)
}
