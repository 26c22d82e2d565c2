// Package graph provides the core DAG-based task orchestration engine.
package graph

import "errors"

// Sentinel errors for the taxonomy described in spec.md §7. Callers should
// use errors.Is against these values; GraphError additionally carries a
// stable Code string and contextual Message for logging.
var (
	// ErrDuplicateID is returned when a caller registers a vertex id that
	// already exists in the DAG.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCycleDetected is returned when an edge would introduce a cycle,
	// including a vertex naming itself as a dependency.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrUnknownEvent is the graph-level sentinel for an event name that
	// was not declared. Subscriptions made through StateMachine report
	// undeclared names with signal.ErrUnknownEvent (a
	// *signal.UnknownEventError), not with this value, and emitting an
	// undeclared name is not an error.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrInvalidTransition is returned when a state machine transition is
	// invoked from a state not listed in its "from" set.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrRemovedBeforeExecution is returned by Task.execute when the task
	// was removed after scheduling but before it reached running.
	ErrRemovedBeforeExecution = errors.New("task was removed before execution")

	// ErrCancelled is installed as a task's error when cancel() succeeds
	// while the task is still pending.
	ErrCancelled = errors.New("task was cancelled")
)

// GraphError is the structured error type for programmer-facing misuse:
// duplicate ids, cycles, and invalid transitions (unknown event names are
// reported by the signal package's own error type). It mirrors
// the teacher's EngineError{Message, Code} shape.
type GraphError struct {
	// Message is a human-readable description, often including the
	// offending id or name.
	Message string

	// Code is a stable machine-readable identifier, e.g. "DUPLICATE_ID".
	Code string

	// Err is the sentinel this error wraps, enabling errors.Is checks.
	Err error
}

func (e *GraphError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap enables errors.Is/errors.As against the wrapped sentinel.
func (e *GraphError) Unwrap() error {
	return e.Err
}

func newDuplicateIDError(id string) error {
	return &GraphError{Message: "duplicate id: " + id, Code: "DUPLICATE_ID", Err: ErrDuplicateID}
}

func newCycleError(from, to string) error {
	return &GraphError{Message: "edge " + from + " -> " + to + " would create a cycle", Code: "CYCLE_DETECTED", Err: ErrCycleDetected}
}

func newUnknownEventError(name string) error {
	return &GraphError{Message: "unknown event: " + name, Code: "UNKNOWN_EVENT", Err: ErrUnknownEvent}
}

func newInvalidTransitionError(transition, from string) error {
	return &GraphError{Message: "transition " + transition + " is not valid from state " + from, Code: "INVALID_TRANSITION", Err: ErrInvalidTransition}
}

// TimedOutError is raised when a task's per-attempt timeout elapses.
type TimedOutError struct {
	// MS is the configured timeout, in milliseconds.
	MS int64
}

func (e *TimedOutError) Error() string {
	return "task timed out after configured budget"
}

// Is allows errors.Is(err, &TimedOutError{}) style matching regardless of
// the MS payload.
func (e *TimedOutError) Is(target error) bool {
	_, ok := target.(*TimedOutError)
	return ok
}
