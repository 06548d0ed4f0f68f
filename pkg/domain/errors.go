package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the registry.
var ErrSessionNotFound = errors.New("session not found")

// ErrDispatchBusy is returned when a previous control goroutine did not exit
// within the join timeout, so a new one cannot be started.
var ErrDispatchBusy = errors.New("previous dispatch still running")

// ErrEmptyGraph is returned when a script compiled to a graph without steps.
var ErrEmptyGraph = errors.New("script declares no steps")

// StepError is the fatal runtime error raised when the current step id does
// not name a step of the graph, or a step can never leave itself.
type StepError struct {
	StepID  string
	Stalled bool
}

func (e *StepError) Error() string {
	if e.Stalled {
		return fmt.Sprintf("step %q has no exit", e.StepID)
	}
	return fmt.Sprintf("unknown step %q", e.StepID)
}

// Text returns the system message queued for the session.
func (e *StepError) Text() string {
	if e.Stalled {
		return fmt.Sprintf(stalledStepFormat, e.StepID)
	}
	return fmt.Sprintf(unknownStepFormat, e.StepID)
}
