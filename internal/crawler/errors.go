package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad user input; no engine call is made.
	ErrValidation = errors.New("validation failed")
	// ErrNoData is returned when an export is attempted on an empty result set.
	ErrNoData = errors.New("no data to export")
	// ErrInvalidTransition marks a lifecycle command not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrCommandInFlight is returned while a previous command's round trip is unresolved.
	ErrCommandInFlight = errors.New("another session command is in flight")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError reports a command rejected by the session state machine.
type TransitionError struct {
	From    string
	Command string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a session that is %s", e.Command, e.From)
}

// Is lets errors.Is(err, ErrInvalidTransition) match any TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NetworkError wraps a failed engine call: either a transport failure (Err set)
// or a non-success HTTP status (StatusCode set).
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: engine returned %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: engine returned %d", e.Op, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PollCycleError reports a poll cycle whose coupled status+results fetch did
// not fully succeed. The previous snapshot stays in place.
type PollCycleError struct {
	Seq uint64
	Err error
}

func (e *PollCycleError) Error() string {
	return fmt.Sprintf("poll cycle %d failed: %v", e.Seq, e.Err)
}

func (e *PollCycleError) Unwrap() error {
	return e.Err
}
