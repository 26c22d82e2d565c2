package graph

import "time"

// TaskSnapshot is a structural, serialization-friendly view of a Task.
type TaskSnapshot struct {
	ID         string
	State      string
	Result     any
	Error      string
	ReliesOn   []string
	Priority   int
	Timeout    time.Duration
	Backoff    time.Duration
	RetryLimit int
	Attempts   int
}

// Snapshot returns a structural snapshot of the task.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	errStr := ""
	if t.err != nil {
		errStr = t.err.Error()
	}

	return TaskSnapshot{
		ID:         t.id,
		State:      t.fsm.State(),
		Result:     t.result,
		Error:      errStr,
		ReliesOn:   append([]string(nil), t.reliesOn...),
		Priority:   t.priority,
		Timeout:    t.timeout,
		Backoff:    t.backoff,
		RetryLimit: t.retryLimit,
		Attempts:   t.attempts,
	}
}

// WorkflowSnapshot is a structural, serialization-friendly view of a
// Workflow and every task it owns.
type WorkflowSnapshot struct {
	ID    string
	State string
	Tasks []TaskSnapshot
}
