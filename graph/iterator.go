package graph

import "context"

// Iterate returns the default async iteration: a pull-based sequence that
// yields a Task each time it reaches a terminal lifecycle event
// (succeeded, failed-with-retries-exhausted, cancelled, or removed). The
// scheduler starts on first pull if the workflow is idle; if the workflow
// already reached done/aborted, the cached task set is yielded directly.
func (wf *Workflow) Iterate(ctx context.Context) func(func(*Task) bool) {
	return func(yield func(*Task) bool) {
		wf.mu.Lock()
		state := wf.fsm.State()
		total := len(wf.tasks)
		cached := make([]*Task, 0, total)
		for _, t := range wf.tasks {
			cached = append(cached, t)
		}
		wf.mu.Unlock()

		if state == "done" || state == "aborted" {
			for _, t := range cached {
				if !yield(t) {
					return
				}
			}
			return
		}

		seq, cancel, err := wf.termSig.Stream([]string{taskTerminalEvent})
		if err != nil {
			return
		}
		defer cancel()

		if state == "idle" {
			go func() { _ = wf.Process(ctx) }()
		}

		yielded := 0
		seq(func(data any) bool {
			task, ok := data.(*Task)
			if !ok {
				return true
			}
			yielded++
			if !yield(task) {
				return false
			}
			return yielded < total
		})
	}
}

// StreamFilter narrows the default iteration to the DAG-terminal tasks
// (those with no dependents) whose final state matches States (default
// ["succeeded"]; "*" matches any state) and, if set, Filter.
type StreamFilter struct {
	States []string
	Filter func(*Task) bool
}

func matchesAnyState(states []string, state string) bool {
	for _, s := range states {
		if s == "*" || s == state {
			return true
		}
	}
	return false
}

// Stream wraps Iterate, yielding only DAG-terminal tasks matching filter.
func (wf *Workflow) Stream(ctx context.Context, filter StreamFilter) func(func(*Task) bool) {
	states := filter.States
	if len(states) == 0 {
		states = []string{"succeeded"}
	}

	base := wf.Iterate(ctx)
	return func(yield func(*Task) bool) {
		base(func(t *Task) bool {
			if !wf.dag.IsTerminal(t.ID()) {
				return true
			}
			if !matchesAnyState(states, t.State()) {
				return true
			}
			if filter.Filter != nil && !filter.Filter(t) {
				return true
			}
			return yield(t)
		})
	}
}

// Try yields task results with fail-fast semantics: on the first task seen
// whose final state is "failed", it aborts the workflow and yields
// (nil, task.error) as the last pair. Consumers end iteration on the first
// non-nil error, matching spec.md's "raises and aborts the workflow".
func (wf *Workflow) Try(ctx context.Context, filter StreamFilter) func(func(any, error) bool) {
	if len(filter.States) == 0 {
		filter.States = []string{"*"}
	}
	base := wf.Stream(ctx, filter)

	return func(yield func(any, error) bool) {
		base(func(t *Task) bool {
			result, err := t.Result()
			if t.State() == "failed" {
				_ = wf.Abort()
				yield(nil, err)
				return false
			}
			return yield(result, nil)
		})
	}
}
