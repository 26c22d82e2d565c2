package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/taskgraph-go/graph/signal"
)

var workflowStateDef = Definition{
	Initial: "idle",
	Transitions: map[string]TransitionDef{
		"begin":  {From: []string{"idle"}, To: "executing"},
		"pause":  {From: []string{"executing"}, To: "paused"},
		"resume": {From: []string{"paused"}, To: "executing"},
		"end":    {From: []string{"executing", "paused"}, To: "done"},
		"abort":  {From: []string{"executing", "paused"}, To: "aborted"},
	},
}

const taskTerminalEvent = "task.terminal"

// taskFuture is one entry in a Workflow's processed map: a memoized,
// single-settlement future for one task's run.
type taskFuture struct {
	done   chan struct{}
	value  any
	err    error
	closed bool
}

func (f *taskFuture) settle(value any, err error) {
	f.value, f.err = value, err
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

// Workflow owns a DAG, a Workflow-FSM, a Semaphore, the in-flight task
// future map, and the streaming iterators built on top of them.
type Workflow struct {
	id      string
	dag     *DAG
	fsm     *StateMachine
	sem     *Semaphore
	metrics *WorkflowMetrics
	tracer  *OTelSink
	termSig *signal.Signaller

	mu             sync.Mutex
	tasks          map[string]*Task
	processed      map[string]*taskFuture
	pendingRemoval map[string]bool
	started        bool

	pauseMu sync.Mutex
	pauseCh chan struct{}
}

// NewWorkflow constructs a Workflow in state "idle".
func NewWorkflow(opts ...WorkflowOption) *Workflow {
	cfg := defaultWorkflowConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	wf := &Workflow{
		id:             cfg.id,
		dag:            NewDAG(),
		sem:            NewSemaphore(cfg.maxConcurrent),
		metrics:        cfg.metrics,
		tracer:         cfg.tracer,
		termSig:        signal.New([]string{taskTerminalEvent}),
		tasks:          make(map[string]*Task),
		processed:      make(map[string]*taskFuture),
		pendingRemoval: make(map[string]bool),
	}
	wf.fsm = NewStateMachine(wf.id, wf, workflowStateDef)

	_, _ = wf.fsm.OnEnter([]string{"paused"}, func(TransitionContext) {
		wf.pauseMu.Lock()
		wf.pauseCh = make(chan struct{})
		wf.pauseMu.Unlock()
	})
	_, _ = wf.fsm.OnLeave([]string{"paused"}, func(TransitionContext) {
		wf.pauseMu.Lock()
		if wf.pauseCh != nil {
			close(wf.pauseCh)
			wf.pauseCh = nil
		}
		wf.pauseMu.Unlock()
	})
	_, _ = wf.fsm.OnEnter([]string{"aborted"}, func(TransitionContext) {
		wf.mu.Lock()
		pending := make([]*Task, 0, len(wf.tasks))
		for _, t := range wf.tasks {
			if t.State() == "pending" {
				pending = append(pending, t)
			}
		}
		wf.mu.Unlock()
		for _, t := range pending {
			t.Cancel()
		}
	})
	_, _ = wf.fsm.OnBefore([]string{"end", "abort"}, func(TransitionContext) {
		wf.drainPendingRemoval()
	})

	if cfg.metrics != nil {
		cfg.metrics.UpdateMaxConcurrent(wf.sem.Max())
	}
	if cfg.tracer != nil {
		_, _ = cfg.tracer.Attach(context.Background(), wf.fsm, "workflow")
	}

	return wf
}

// ID returns the workflow's identity.
func (wf *Workflow) ID() string { return wf.id }

// State returns the Workflow-FSM's current state name.
func (wf *Workflow) State() string { return wf.fsm.State() }

// Add constructs a Task for work and inserts it into the DAG; the vertex's
// outgoing edges are the task's reliesOn list. Duplicate id errors bubble
// up unchanged.
func (wf *Workflow) Add(work WorkFunc, opts ...TaskOption) (*Task, error) {
	task := NewTask(work, opts...)

	wf.mu.Lock()
	defer wf.mu.Unlock()

	if err := wf.dag.AddVertex(task.id, task, task.ReliesOn()); err != nil {
		return nil, err
	}
	wf.tasks[task.id] = task

	if wf.metrics != nil {
		id := wf.id
		_, _ = task.fsm.OnAfter([]string{"retry"}, func(TransitionContext) {
			wf.metrics.IncrementRetries(id, task.id)
		})
		_, _ = task.fsm.OnAfter([]string{"cancel"}, func(TransitionContext) {
			wf.metrics.IncrementCancellations(id, task.id)
		})
		_, _ = task.fsm.OnAfter([]string{"timeout"}, func(TransitionContext) {
			wf.metrics.IncrementTimeouts(id, task.id)
		})
	}

	if wf.tracer != nil {
		_, _ = wf.tracer.Attach(context.Background(), task.fsm, "task")
	}

	return task, nil
}

// Remove detaches id. While the workflow is executing or paused, removal is
// deferred: the id is recorded in the pending-removal set and the task's
// own remove transition fires immediately (so a running task observes its
// own removal at its next yield point), but the vertex is only actually
// detached on the next end/abort transition.
func (wf *Workflow) Remove(id string) (*Task, error) {
	wf.mu.Lock()
	task, ok := wf.tasks[id]
	if !ok {
		wf.mu.Unlock()
		return nil, nil
	}
	state := wf.fsm.State()
	if state == "executing" || state == "paused" {
		wf.pendingRemoval[id] = true
		wf.mu.Unlock()
		task.Remove()
		return task, nil
	}
	wf.mu.Unlock()

	wf.dag.RemoveVertex(id)
	wf.mu.Lock()
	delete(wf.tasks, id)
	wf.mu.Unlock()
	return task, nil
}

func (wf *Workflow) drainPendingRemoval() {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	for id := range wf.pendingRemoval {
		wf.dag.RemoveVertex(id)
		delete(wf.tasks, id)
		delete(wf.processed, id)
	}
	wf.pendingRemoval = make(map[string]bool)
}

// Pause/Resume/Abort are thin, idempotent wrappers over the Workflow-FSM.
func (wf *Workflow) Pause() error {
	if wf.State() == "paused" {
		return nil
	}
	return wf.fsm.Invoke("pause")
}

func (wf *Workflow) Resume() error {
	if wf.State() == "executing" {
		return nil
	}
	return wf.fsm.Invoke("resume")
}

func (wf *Workflow) Abort() error {
	if wf.State() == "aborted" {
		return nil
	}
	return wf.fsm.Invoke("abort")
}

// checkPause awaits the pause gate, if one is currently allocated.
func (wf *Workflow) checkPause(ctx context.Context) error {
	wf.pauseMu.Lock()
	ch := wf.pauseCh
	wf.pauseMu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func taskPriorityDesc(a, b any) bool {
	return a.(*Task).priority > b.(*Task).priority
}

// Process runs the scheduler exactly once per workflow life: it transitions
// idle -> executing, launches run() for every task in topological
// (priority-first) order, and waits for every launched task to settle.
func (wf *Workflow) Process(ctx context.Context) error {
	wf.mu.Lock()
	if wf.started {
		wf.mu.Unlock()
		return nil
	}
	wf.started = true
	wf.mu.Unlock()

	if err := wf.fsm.Invoke("begin"); err != nil {
		return err
	}
	if wf.State() == "aborted" {
		return nil
	}
	if err := wf.checkPause(ctx); err != nil {
		return err
	}

	ordered := wf.dag.TopoSort(taskPriorityDesc)

	var g errgroup.Group
	for _, v := range ordered {
		task, ok := v.(*Task)
		if !ok {
			continue
		}
		id := task.ID()

		wf.mu.Lock()
		_, exists := wf.processed[id]
		wf.mu.Unlock()
		if exists {
			continue
		}

		g.Go(func() error {
			wf.run(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if wf.State() != "aborted" {
		_ = wf.fsm.Invoke("end")
	}
	return nil
}

// run resolves task id's future, recursively resolving its dependencies
// first. It is memoized: concurrent callers for the same id block on the
// same future rather than re-executing the task.
func (wf *Workflow) run(ctx context.Context, id string) *taskFuture {
	wf.mu.Lock()
	if f, ok := wf.processed[id]; ok {
		wf.mu.Unlock()
		<-f.done
		return f
	}
	f := &taskFuture{done: make(chan struct{})}
	wf.processed[id] = f
	task := wf.tasks[id]
	wf.mu.Unlock()

	if task == nil {
		f.settle(nil, ErrRemovedBeforeExecution)
		return f
	}

	deps := task.ReliesOn()
	depValues := make([]any, len(deps))
	depFailed := false
	for i, depID := range deps {
		depFuture := wf.run(ctx, depID)
		if depFuture.err != nil {
			depValues[i] = depFuture.err
			depFailed = true
		} else {
			depValues[i] = depFuture.value
		}
	}
	if depFailed {
		task.Cancel()
	}

	acquireErr := wf.sem.WithLock(ctx, func() error {
		if wf.metrics != nil {
			wf.metrics.UpdateActiveTasks(wf.sem.Active())
		}
		start := time.Now()
		result, execErr := task.Execute(ctx, depValues, wf.checkPause)
		if wf.metrics != nil {
			status := "success"
			if execErr != nil {
				status = "error"
			}
			wf.metrics.RecordTaskLatency(wf.id, id, time.Since(start), status)
		}
		f.value, f.err = result, execErr
		return nil
	})
	if wf.metrics != nil {
		wf.metrics.UpdateActiveTasks(wf.sem.Active())
	}
	if acquireErr != nil {
		f.settle(nil, acquireErr)
	} else {
		f.settle(f.value, f.err)
	}

	wf.termSig.Emit(taskTerminalEvent, task)
	return f
}

// Snapshot returns a structural snapshot of the workflow and its tasks.
func (wf *Workflow) Snapshot() WorkflowSnapshot {
	wf.mu.Lock()
	tasks := make([]*Task, 0, len(wf.tasks))
	for _, t := range wf.tasks {
		tasks = append(tasks, t)
	}
	wf.mu.Unlock()

	snaps := make([]TaskSnapshot, len(tasks))
	for i, t := range tasks {
		snaps[i] = t.Snapshot()
	}
	return WorkflowSnapshot{ID: wf.id, State: wf.State(), Tasks: snaps}
}
