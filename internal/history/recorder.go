// Package history records executed tool calls per turn for display.
package history

import (
	"fmt"
	"sync"
	"time"
)

// TruncateLength is the display length beyond which an entry is flagged
// truncated. The flag is informational; recorded data is never clipped.
const (
	TruncateLength    = 500
	DefaultMaxVisible = 3
	DefaultMaxTurns   = 20
)

// Entry is one recorded tool call within a turn.
type Entry struct {
	ID         string
	Tool       string
	Input      string
	Output     string
	IsError    bool
	Truncated  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the call ran, or zero if still in flight.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Turn groups the entries of one user turn.
type Turn struct {
	Index   int
	Entries []Entry
}

// View is a turn prepared for rendering: the visible entries plus the
// count of entries collapsed away.
type View struct {
	Entries     []Entry
	HiddenCount int
}

// Recorder accumulates tool call entries grouped by turn. It is an
// observational record only; nothing in execution reads it back. Only
// the most recent maxTurns turns are retained; older ones are dropped
// when a new turn starts.
type Recorder struct {
	mu         sync.Mutex
	turns      []*Turn
	nextIndex  int
	maxVisible int
	maxTurns   int
	verbose    bool
}

// NewRecorder creates a recorder with the default collapsed view size.
func NewRecorder() *Recorder {
	return &Recorder{maxVisible: DefaultMaxVisible, maxTurns: DefaultMaxTurns}
}

// StartTurn opens a new turn group and returns its index. Turns beyond
// the retention cap are evicted oldest first.
func (r *Recorder) StartTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Turn{Index: r.nextIndex}
	r.nextIndex++
	r.turns = append(r.turns, t)
	if len(r.turns) > r.maxTurns {
		r.turns = r.turns[len(r.turns)-r.maxTurns:]
	}
	return t.Index
}

// StartToolUse records the beginning of a tool call in the current turn
// and returns the entry index for EndToolUse.
func (r *Recorder) StartToolUse(id, tool, input string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		r.turns = append(r.turns, &Turn{Index: r.nextIndex})
		r.nextIndex++
	}
	turn := r.turns[len(r.turns)-1]
	turn.Entries = append(turn.Entries, Entry{
		ID:        id,
		Tool:      tool,
		Input:     input,
		Truncated: len(input) > TruncateLength,
		StartedAt: time.Now(),
	})
	return len(turn.Entries) - 1
}

// EndToolUse records the outcome of an in-flight entry. The result is
// stored whole; only the truncation flag reflects display length.
func (r *Recorder) EndToolUse(index int, output string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		return
	}
	turn := r.turns[len(r.turns)-1]
	if index < 0 || index >= len(turn.Entries) {
		return
	}
	entry := &turn.Entries[index]
	entry.Output = output
	entry.Truncated = entry.Truncated || len(output) > TruncateLength
	entry.IsError = isError
	entry.FinishedAt = time.Now()
}

// SetVerbose toggles between collapsed and full views.
func (r *Recorder) SetVerbose(verbose bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = verbose
}

// Verbose reports the current view mode.
func (r *Recorder) Verbose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verbose
}

// CurrentTurn returns the view of the latest turn: all entries when
// verbose, otherwise the first maxVisible with the remainder counted.
func (r *Recorder) CurrentTurn() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		return View{}
	}
	return r.viewLocked(r.turns[len(r.turns)-1])
}

// TurnView returns the view of a specific turn by index. Evicted turns
// report not found.
func (r *Recorder) TurnView(index int) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		return View{}, false
	}
	offset := index - r.turns[0].Index
	if offset < 0 || offset >= len(r.turns) {
		return View{}, false
	}
	return r.viewLocked(r.turns[offset]), true
}

// Turns returns a deep copy of every recorded turn.
func (r *Recorder) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Turn, len(r.turns))
	for i, t := range r.turns {
		out[i] = Turn{Index: t.Index, Entries: append([]Entry(nil), t.Entries...)}
	}
	return out
}

// Reset drops all recorded turns.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = nil
	r.nextIndex = 0
}

func (r *Recorder) viewLocked(turn *Turn) View {
	entries := append([]Entry(nil), turn.Entries...)
	if r.verbose || len(entries) <= r.maxVisible {
		return View{Entries: entries}
	}
	return View{
		Entries:     entries[:r.maxVisible],
		HiddenCount: len(entries) - r.maxVisible,
	}
}

// DisplayValue returns s clipped to TruncateLength for rendering, with a
// marker naming how much was hidden.
func DisplayValue(s string) string {
	if len(s) <= TruncateLength {
		return s
	}
	return s[:TruncateLength] + fmt.Sprintf("... (%d more bytes)", len(s)-TruncateLength)
}
