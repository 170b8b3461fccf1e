package agent

import (
	"errors"
	"fmt"
)

// Phase identifies where in the turn a failure happened.
type Phase string

const (
	PhaseInit    Phase = "init"
	PhaseStream  Phase = "stream"
	PhaseExecute Phase = "execute"
)

var (
	// ErrTurnActive is returned by Run while another turn is in flight.
	ErrTurnActive = errors.New("a turn is already running")

	// ErrCancelled is returned when the user stops the turn before it
	// completes on its own.
	ErrCancelled = errors.New("turn cancelled")

	// ErrNoProvider is returned when the orchestrator has no model
	// provider configured.
	ErrNoProvider = errors.New("no model provider configured")
)

// TurnError wraps a failure that aborted a turn, tagged with the phase it
// occurred in. Tool failures never become TurnErrors; they are fed back
// to the model as error results.
type TurnError struct {
	Phase Phase
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed during %s: %v", e.Phase, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func turnErr(phase Phase, err error) *TurnError {
	return &TurnError{Phase: phase, Err: err}
}
