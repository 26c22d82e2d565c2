package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWorkflowMetrics_MaxConcurrentSetOnConstruction(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWorkflowMetrics(registry)

	_ = NewWorkflow(WithWorkflowMetrics(metrics), WithMaxConcurrent(3))

	if got := testutil.ToFloat64(metrics.maxConcurrent); got != 3 {
		t.Errorf("expected max_concurrent gauge = 3, got %v", got)
	}
}

func TestWorkflowMetrics_RecordsRetryCancellationTimeoutAndLatency(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWorkflowMetrics(registry)

	wf := NewWorkflow(WithWorkflowMetrics(metrics))

	calls := 0
	if _, err := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, WithTaskID("retried"), WithRetryLimit(1), WithBackoff(time.Millisecond)); err != nil {
		t.Fatalf("Add retried: %v", err)
	}

	if _, err := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return nil, errors.New("boom")
	}, WithTaskID("failing")); err != nil {
		t.Fatalf("Add failing: %v", err)
	}
	if _, err := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		t.Error("cancelled task's work must never run")
		return nil, nil
	}, WithTaskID("dependent"), WithReliesOn("failing")); err != nil {
		t.Fatalf("Add dependent: %v", err)
	}

	if _, err := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTaskID("slow"), WithTimeout(5*time.Millisecond)); err != nil {
		t.Fatalf("Add slow: %v", err)
	}

	if err := wf.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := testutil.ToFloat64(metrics.retries.WithLabelValues(wf.ID(), "retried")); got != 1 {
		t.Errorf("expected retries_total{task_id=retried} = 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.cancellations.WithLabelValues(wf.ID(), "dependent")); got != 1 {
		t.Errorf("expected cancellations_total{task_id=dependent} = 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.timeouts.WithLabelValues(wf.ID(), "slow")); got != 1 {
		t.Errorf("expected timeouts_total{task_id=slow} = 1, got %v", got)
	}
	if testutil.CollectAndCount(metrics.taskLatency) == 0 {
		t.Error("expected task_latency_ms histogram to have recorded observations")
	}
}

func TestWorkflowMetrics_DisableSuppressesRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWorkflowMetrics(registry)
	metrics.Disable()

	wf := NewWorkflow(WithWorkflowMetrics(metrics))
	if _, err := wf.Add(func(ctx context.Context, deps []any) (any, error) {
		return nil, errors.New("boom")
	}, WithTaskID("only")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := wf.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if testutil.CollectAndCount(metrics.taskLatency) != 0 {
		t.Error("expected no latency observations while disabled")
	}

	metrics.Enable()
	metrics.UpdateActiveTasks(2)
	if got := testutil.ToFloat64(metrics.activeTasks); got != 2 {
		t.Errorf("expected active_tasks = 2 after Enable, got %v", got)
	}

	metrics.Reset()
	if got := testutil.ToFloat64(metrics.activeTasks); got != 0 {
		t.Errorf("expected active_tasks reset to 0, got %v", got)
	}
}
