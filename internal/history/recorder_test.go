package history

import (
	"strings"
	"testing"
)

func TestStartEndToolUse(t *testing.T) {
	r := NewRecorder()
	r.StartTurn()

	idx := r.StartToolUse("tc_1", "read_file", `{"path":"main.go"}`)
	r.EndToolUse(idx, "package main\n", false)

	view := r.CurrentTurn()
	if len(view.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(view.Entries))
	}
	e := view.Entries[0]
	if e.Tool != "read_file" || e.Output != "package main\n" || e.IsError {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
}

func TestTruncation(t *testing.T) {
	r := NewRecorder()
	r.StartTurn()

	long := strings.Repeat("x", TruncateLength+100)
	idx := r.StartToolUse("tc_1", "bash", long)
	r.EndToolUse(idx, "ok", false)

	e := r.CurrentTurn().Entries[0]
	if !e.Truncated {
		t.Error("expected truncated flag for long input")
	}
	// The flag is informational only; the record keeps the full value.
	if e.Input != long {
		t.Errorf("stored input was mutated: %d bytes", len(e.Input))
	}
	if display := DisplayValue(e.Input); !strings.Contains(display, "100 more bytes") {
		t.Errorf("expected clip marker in display form, got tail %q", display[len(display)-30:])
	}

	// Short values stay unflagged.
	idx = r.StartToolUse("tc_2", "bash", "ls")
	r.EndToolUse(idx, "ok", false)
	if r.CurrentTurn().Entries[1].Truncated {
		t.Error("short entry must not be flagged truncated")
	}
}

func TestCollapsedView(t *testing.T) {
	r := NewRecorder()
	r.StartTurn()
	for i := 0; i < 5; i++ {
		idx := r.StartToolUse("tc", "glob", "*.go")
		r.EndToolUse(idx, "hit", false)
	}

	view := r.CurrentTurn()
	if len(view.Entries) != DefaultMaxVisible {
		t.Errorf("expected %d visible entries, got %d", DefaultMaxVisible, len(view.Entries))
	}
	if view.HiddenCount != 2 {
		t.Errorf("expected 2 hidden, got %d", view.HiddenCount)
	}

	r.SetVerbose(true)
	view = r.CurrentTurn()
	if len(view.Entries) != 5 || view.HiddenCount != 0 {
		t.Errorf("verbose view should show all 5, got %d visible %d hidden",
			len(view.Entries), view.HiddenCount)
	}
}

func TestTurnsAreGroupedSeparately(t *testing.T) {
	r := NewRecorder()

	first := r.StartTurn()
	r.EndToolUse(r.StartToolUse("a", "bash", "ls"), "out", false)

	second := r.StartTurn()
	r.EndToolUse(r.StartToolUse("b", "bash", "pwd"), "out", false)
	r.EndToolUse(r.StartToolUse("c", "bash", "env"), "out", true)

	v1, ok := r.TurnView(first)
	if !ok || len(v1.Entries) != 1 {
		t.Fatalf("expected 1 entry in first turn, got %d (ok=%v)", len(v1.Entries), ok)
	}
	v2, ok := r.TurnView(second)
	if !ok || len(v2.Entries) != 2 {
		t.Fatalf("expected 2 entries in second turn, got %d (ok=%v)", len(v2.Entries), ok)
	}
	if !v2.Entries[1].IsError {
		t.Error("expected error flag on last entry")
	}
}

func TestRetention_EvictsOldestTurns(t *testing.T) {
	r := NewRecorder()
	r.maxTurns = 2

	first := r.StartTurn()
	r.EndToolUse(r.StartToolUse("a", "bash", "ls"), "out", false)
	second := r.StartTurn()
	third := r.StartTurn()

	if _, ok := r.TurnView(first); ok {
		t.Error("expected oldest turn to be evicted")
	}
	if _, ok := r.TurnView(second); !ok {
		t.Error("expected second turn to survive")
	}
	if _, ok := r.TurnView(third); !ok {
		t.Error("expected newest turn to survive")
	}
	if got := len(r.Turns()); got != 2 {
		t.Errorf("expected 2 retained turns, got %d", got)
	}
}

func TestReset(t *testing.T) {
	r := NewRecorder()
	r.StartTurn()
	r.StartToolUse("a", "bash", "ls")
	r.Reset()

	if got := len(r.Turns()); got != 0 {
		t.Fatalf("expected no turns after reset, got %d", got)
	}
	if view := r.CurrentTurn(); len(view.Entries) != 0 {
		t.Errorf("expected empty current view after reset")
	}
}
