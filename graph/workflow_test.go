package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorkflow_LinearChain(t *testing.T) {
	wf := NewWorkflow()

	a, _ := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return 1, nil
	}, WithTaskID("A"))
	b, _ := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return deps[0].(int) + 1, nil
	}, WithTaskID("B"), WithReliesOn("A"))
	c, _ := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return deps[0].(int) + 10, nil
	}, WithTaskID("C"), WithReliesOn("B"))

	if err := wf.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if r, _ := a.Result(); r != 1 {
		t.Errorf("A: expected 1, got %v", r)
	}
	if r, _ := b.Result(); r != 2 {
		t.Errorf("B: expected 2, got %v", r)
	}
	if r, _ := c.Result(); r != 12 {
		t.Errorf("C: expected 12, got %v", r)
	}
	if wf.State() != "done" {
		t.Errorf("expected done, got %s", wf.State())
	}
}

func TestWorkflow_Diamond(t *testing.T) {
	wf := NewWorkflow(WithMaxConcurrent(2))

	var mu sync.Mutex
	var overlapped bool
	running := 0

	track := func() func() {
		mu.Lock()
		running++
		if running > 1 {
			overlapped = true
		}
		mu.Unlock()
		return func() {
			mu.Lock()
			running--
			mu.Unlock()
		}
	}

	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return "a", nil
	}, WithTaskID("A"))
	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		done := track()
		defer done()
		time.Sleep(15 * time.Millisecond)
		return deps[0], nil
	}, WithTaskID("B"), WithReliesOn("A"))
	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		done := track()
		defer done()
		time.Sleep(15 * time.Millisecond)
		return deps[0], nil
	}, WithTaskID("C"), WithReliesOn("A"))
	d, _ := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return deps[0].(string) + deps[1].(string), nil
	}, WithTaskID("D"), WithReliesOn("B", "C"))

	if err := wf.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if r, _ := d.Result(); r != "aa" {
		t.Errorf("D: expected aa, got %v", r)
	}
	if !overlapped {
		t.Error("expected B and C to overlap in running with maxConcurrent=2")
	}
}

func TestWorkflow_DependentCancellation(t *testing.T) {
	wf := NewWorkflow()

	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return nil, errors.New("boom")
	}, WithTaskID("A"))
	bInvoked := false
	b, _ := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		bInvoked = true
		return nil, nil
	}, WithTaskID("B"), WithReliesOn("A"))

	_ = wf.Process(context.Background())

	if bInvoked {
		t.Error("B.work should never be invoked once its dependency fails")
	}
	if b.State() != "cancelled" {
		t.Errorf("expected B cancelled, got %s", b.State())
	}
}

func TestWorkflow_TryFailFast(t *testing.T) {
	wf := NewWorkflow(WithMaxConcurrent(5))

	wantErr := errors.New("task failure")
	for i := 0; i < 4; i++ {
		_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
			return "ok", nil
		})
	}
	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return nil, wantErr
	})

	var sawErr error
	for _, err := range wf.Try(context.Background(), StreamFilter{}) {
		if err != nil {
			sawErr = err
			break
		}
	}

	if !errors.Is(sawErr, wantErr) {
		t.Fatalf("expected try() to surface %v, got %v", wantErr, sawErr)
	}

	deadline := time.After(time.Second)
	for wf.State() != "aborted" {
		select {
		case <-deadline:
			t.Fatalf("expected workflow aborted, stuck at %s", wf.State())
		default:
		}
	}
}

func TestWorkflow_DeferredRemoval(t *testing.T) {
	wf := NewWorkflow()

	release := make(chan struct{})
	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		<-release
		return "done", nil
	}, WithTaskID("slow"))

	go func() { _ = wf.Process(context.Background()) }()

	deadline := time.After(time.Second)
	for wf.State() == "idle" {
		select {
		case <-deadline:
			t.Fatal("workflow never left idle")
		default:
		}
	}

	removed, err := wf.Remove("slow")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.State() != "removed" {
		t.Errorf("expected task fsm state removed, got %s", removed.State())
	}

	wf.mu.Lock()
	_, stillTracked := wf.tasks["slow"]
	wf.mu.Unlock()
	if !stillTracked {
		t.Error("expected removal to be deferred while workflow is executing")
	}

	close(release)
}

func TestWorkflow_StreamDefaultsToSucceeded(t *testing.T) {
	wf := NewWorkflow()

	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return nil, errors.New("fail")
	}, WithTaskID("fails"))
	_, _ = wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return "ok", nil
	}, WithTaskID("ok"))

	var seen []string
	for task := range wf.Stream(context.Background(), StreamFilter{}) {
		seen = append(seen, task.ID())
	}

	if len(seen) != 1 || seen[0] != "ok" {
		t.Errorf("expected only [ok], got %v", seen)
	}
}
