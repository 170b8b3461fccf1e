package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"steward/internal/observability"
)

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := m.Get(id)
		if !ok {
			t.Fatalf("task %s disappeared", id)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := m.Get(id)
	t.Fatalf("task %s never reached %s (stuck at %s)", id, want, task.Status)
	return Task{}
}

func TestRun_CompleteLifecycle(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	task, err := m.Run("indexer", "", func(ctx context.Context, out *Writer) error {
		out.Printf("indexed %d files\n", 3)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending snapshot, got %s", task.Status)
	}

	done := waitForStatus(t, m, task.ID, StatusComplete)
	if done.Output != "indexed 3 files\n" {
		t.Errorf("unexpected output %q", done.Output)
	}
	if done.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestRun_ErrorLifecycle(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	task, _ := m.Run("flaky", "", func(ctx context.Context, out *Writer) error {
		return errors.New("boom")
	}, nil)

	done := waitForStatus(t, m, task.ID, StatusError)
	if done.Error != "boom" {
		t.Errorf("expected error message, got %q", done.Error)
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	task, _ := m.Run("panicky", "", func(ctx context.Context, out *Writer) error {
		panic("oh no")
	}, nil)

	done := waitForStatus(t, m, task.ID, StatusError)
	if !strings.Contains(done.Error, "oh no") {
		t.Errorf("expected panic message in error, got %q", done.Error)
	}
}

func TestAbort(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	started := make(chan struct{})
	task, _ := m.Run("long", "", func(ctx context.Context, out *Writer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	<-started

	if !m.Abort(task.ID) {
		t.Fatal("expected abort to succeed")
	}
	done, _ := m.Get(task.ID)
	if done.Status != StatusError || done.Error != "aborted" {
		t.Errorf("expected aborted error state, got %s %q", done.Status, done.Error)
	}

	// The operation's own return must not overwrite the abort outcome.
	time.Sleep(20 * time.Millisecond)
	again, _ := m.Get(task.ID)
	if again.Error != "aborted" {
		t.Errorf("abort outcome was overwritten: %q", again.Error)
	}

	if m.Abort(task.ID) {
		t.Error("aborting a finished task must be a no-op")
	}
}

func TestOutput_WhileRunning(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	wrote := make(chan struct{})
	release := make(chan struct{})
	task, _ := m.Run("streamer", "", func(ctx context.Context, out *Writer) error {
		out.Printf("partial")
		close(wrote)
		<-release
		return nil
	}, nil)
	<-wrote

	got, ok := m.Output(task.ID)
	if !ok || got != "partial" {
		t.Errorf("expected live output %q, got %q (ok=%v)", "partial", got, ok)
	}
	close(release)
	waitForStatus(t, m, task.ID, StatusComplete)
}

func TestByStatusAndClearFinished(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	done1, _ := m.Run("a", "", func(ctx context.Context, out *Writer) error { return nil }, nil)
	done2, _ := m.Run("b", "", func(ctx context.Context, out *Writer) error { return nil }, nil)
	waitForStatus(t, m, done1.ID, StatusComplete)
	waitForStatus(t, m, done2.ID, StatusComplete)

	block := make(chan struct{})
	live, _ := m.Run("c", "", func(ctx context.Context, out *Writer) error {
		<-block
		return nil
	}, nil)
	waitForStatus(t, m, live.ID, StatusRunning)

	if got := len(m.ByStatus(StatusComplete)); got != 2 {
		t.Errorf("expected 2 complete tasks, got %d", got)
	}
	if removed := m.ClearFinished(); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if got := len(m.All()); got != 1 {
		t.Errorf("expected the live task to survive, got %d tasks", got)
	}
	close(block)
	waitForStatus(t, m, live.ID, StatusComplete)
}

func TestSweep_EvictsOldestFinishedBeyondCap(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()
	m.maxRetained = 2

	var ids []string
	for i := 0; i < 4; i++ {
		task, _ := m.Run("n", "", func(ctx context.Context, out *Writer) error { return nil }, nil)
		waitForStatus(t, m, task.ID, StatusComplete)
		ids = append(ids, task.ID)
	}

	m.sweep()

	if got := len(m.All()); got != 2 {
		t.Fatalf("expected 2 retained tasks, got %d", got)
	}
	for _, id := range ids[:2] {
		if _, ok := m.Get(id); ok {
			t.Errorf("expected oldest task %s to be evicted", id)
		}
	}
	for _, id := range ids[2:] {
		if _, ok := m.Get(id); !ok {
			t.Errorf("expected newest task %s to survive", id)
		}
	}
}

func TestClose_RejectsNewTasks(t *testing.T) {
	m := NewManager(nil, nil)
	m.Close()

	if _, err := m.Run("late", "", func(ctx context.Context, out *Writer) error { return nil }, nil); err == nil {
		t.Fatal("expected Run after Close to fail")
	}
}

func TestRun_DoneCallbackFiresOnCompletion(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	got := make(chan Task, 1)
	task, err := m.Run("lint", "golangci-lint over the workspace", func(ctx context.Context, out *Writer) error {
		out.Printf("clean")
		return nil
	}, func(task Task) { got <- task })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case final := <-got:
		if final.ID != task.ID || final.Status != StatusComplete {
			t.Errorf("unexpected terminal snapshot %+v", final)
		}
		if final.Description != "golangci-lint over the workspace" {
			t.Errorf("description not carried to snapshot: %q", final.Description)
		}
		if final.Output != "clean" {
			t.Errorf("expected output in terminal snapshot, got %q", final.Output)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("done callback never fired")
	}
}

func TestAbort_FiresDoneCallback(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	got := make(chan Task, 1)
	started := make(chan struct{})
	task, _ := m.Run("long", "", func(ctx context.Context, out *Writer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, func(task Task) { got <- task })
	<-started

	m.Abort(task.ID)
	select {
	case final := <-got:
		if final.Status != StatusError || final.Error != "aborted" {
			t.Errorf("expected aborted snapshot, got %+v", final)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("done callback never fired on abort")
	}

	// The operation's own return afterwards must not fire it again.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-got:
		t.Error("done callback fired twice")
	default:
	}
}

func TestRun_TracksRunningGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(nil, observability.NewMetricsWith(reg))
	defer m.Close()

	release := make(chan struct{})
	task, _ := m.Run("long", "", func(ctx context.Context, out *Writer) error {
		<-release
		return nil
	}, nil)

	if got := gaugeValue(t, reg, "steward_background_tasks_running"); got != 1 {
		t.Errorf("expected gauge 1 while task is live, got %v", got)
	}
	close(release)
	waitForStatus(t, m, task.ID, StatusComplete)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gaugeValue(t, reg, "steward_background_tasks_running") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("gauge never returned to 0 after completion")
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}
