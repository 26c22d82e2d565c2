package graph

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkFunc is the unit of work a Task executes. deps holds the settled
// outcome of every task this one relies on, in reliesOn order — including
// a captured error returned as a plain value when a dependency failed (see
// SPEC_FULL.md's resolution of the dependency-value ambiguity).
type WorkFunc func(ctx context.Context, deps []any) (any, error)

var taskStateDef = Definition{
	Initial: "created",
	Transitions: map[string]TransitionDef{
		"add":     {From: []string{"created"}, To: "pending"},
		"start":   {From: []string{"pending"}, To: "running"},
		"succeed": {From: []string{"running"}, To: "succeeded"},
		"fail":    {From: []string{"running"}, To: "failed"},
		"timeout": {From: []string{"running"}, To: "failed"},
		"retry":   {From: []string{"failed"}, To: "pending"},
		"cancel":  {From: []string{"pending"}, To: "cancelled"},
		"remove":  {From: []string{wildcardState}, To: "removed"},
	},
}

// Task is one unit of work with retry/timeout/backoff, owning a Task-FSM.
type Task struct {
	id         string
	reliesOn   []string
	priority   int
	retryLimit int
	backoff    time.Duration
	timeout    time.Duration
	work       WorkFunc

	fsm *StateMachine

	mu       sync.Mutex
	attempts int
	result   any
	err      error

	rng *rand.Rand
}

// NewTask constructs a Task in state "created" and immediately drives it to
// "pending" via the "add" transition, per spec: construction registers the
// Task-FSM and performs created -> pending.
func NewTask(work WorkFunc, opts ...TaskOption) *Task {
	cfg := defaultTaskConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	t := &Task{
		id:         cfg.id,
		reliesOn:   append([]string(nil), cfg.reliesOn...),
		priority:   cfg.priority,
		retryLimit: cfg.retryLimit,
		backoff:    cfg.backoff,
		timeout:    cfg.timeout,
		work:       work,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // retry jitter only
	}
	t.fsm = NewStateMachine(t.id, t, taskStateDef)

	// start clears prior error; cancel installs the cancellation error;
	// these are the internal after-handlers the construction wires per spec.
	_, _ = t.fsm.OnAfter([]string{"start"}, func(TransitionContext) {
		t.mu.Lock()
		t.err = nil
		t.mu.Unlock()
	})
	_, _ = t.fsm.OnAfter([]string{"cancel"}, func(TransitionContext) {
		t.mu.Lock()
		t.err = ErrCancelled
		t.mu.Unlock()
	})

	if err := t.fsm.Invoke("add"); err != nil {
		panic(err) // created -> pending is always legal immediately after construction
	}
	return t
}

// ID returns the task's identity.
func (t *Task) ID() string { return t.id }

// ReliesOn returns the ids of the tasks this one depends on.
func (t *Task) ReliesOn() []string { return append([]string(nil), t.reliesOn...) }

// Priority returns the tie-breaker used in topological sort.
func (t *Task) Priority() int { return t.priority }

// State returns the Task-FSM's current state name.
func (t *Task) State() string { return t.fsm.State() }

// Result returns the task's stored result and error.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Attempts returns the number of start transitions invoked so far.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// On subscribes to raw Task-FSM events; see StateMachine.On.
func (t *Task) On(events []string, cb func(string, any), cancel <-chan struct{}) (func(), error) {
	return t.fsm.On(events, cb, cancel)
}

// Cancel transitions pending -> cancelled. Called while running, failed, or
// any terminal state is a no-op per spec's cancellation semantics (the
// underlying StateMachine simply rejects the transition and we swallow it).
func (t *Task) Cancel() {
	_ = t.fsm.Invoke("cancel")
}

// Remove invokes the * -> removed transition. Idempotent: a task already in
// "removed" is left alone, so no transition or events fire a second time.
func (t *Task) Remove() {
	if t.State() == "removed" {
		return
	}
	_ = t.fsm.Invoke("remove")
}

// checkPauseFunc awaits a workflow's pause gate; Execute calls it at the top
// of every attempt loop iteration, per spec §4.5 step 2a.
type checkPauseFunc func(ctx context.Context) error

// Execute runs the retry/timeout loop described in spec.md §4.5. deps holds
// the settled dependency values in reliesOn order.
func (t *Task) Execute(ctx context.Context, deps []any, checkPause checkPauseFunc) (any, error) {
	if t.State() == "cancelled" {
		_, err := t.Result()
		if err == nil {
			err = ErrCancelled
		}
		return nil, err
	}

	t.mu.Lock()
	t.attempts = 0
	t.mu.Unlock()

	// attemptIndex is the zero-based counter the spec's retry loop condition
	// ("attempts <= retryLimit") is written against. t.attempts, exposed via
	// Attempts(), instead counts completed "start" transitions (1-based),
	// matching the scenario wording "attempts 3" after two failures and a
	// third, successful try.
	for attemptIndex := 0; ; attemptIndex++ {
		if checkPause != nil {
			if err := checkPause(ctx); err != nil {
				return nil, err
			}
		}

		if t.State() == "removed" {
			return nil, ErrRemovedBeforeExecution
		}
		if t.State() == "cancelled" {
			// A Cancel() raced the backoff wait above and won: the task
			// never re-entered "running" for this attempt.
			_, err := t.Result()
			if err == nil {
				err = ErrCancelled
			}
			return nil, err
		}

		if err := t.fsm.Invoke("start"); err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.attempts++
		t.mu.Unlock()

		result, execErr := t.runOneAttempt(ctx, deps)

		if execErr == nil {
			t.mu.Lock()
			t.result = result
			t.err = nil
			t.mu.Unlock()
			if err := t.fsm.Invoke("succeed"); err != nil {
				return nil, err
			}
			return result, nil
		}

		t.mu.Lock()
		t.err = execErr
		t.mu.Unlock()

		if t.State() == "running" {
			if _, isTimeout := execErr.(*TimedOutError); isTimeout {
				_ = t.fsm.Invoke("timeout")
			} else {
				_ = t.fsm.Invoke("fail")
			}
		}

		if attemptIndex == t.retryLimit {
			return nil, execErr
		}

		// Transition back to pending before waiting out the backoff, per
		// spec: a Cancel() racing the backoff window must see "pending"
		// and succeed, not find the task still parked in "failed".
		if err := t.fsm.Invoke("retry"); err != nil {
			return nil, err
		}

		delay := computeBackoff(t.backoff, attemptIndex, t.rng)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// runOneAttempt invokes work, racing it against the configured per-attempt
// timeout if one is set.
func (t *Task) runOneAttempt(ctx context.Context, deps []any) (any, error) {
	if t.timeout <= 0 {
		return t.work(ctx, deps)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := t.work(attemptCtx, deps)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-attemptCtx.Done():
		return nil, &TimedOutError{MS: t.timeout.Milliseconds()}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
