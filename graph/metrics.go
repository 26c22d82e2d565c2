package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkflowMetrics provides Prometheus-compatible instrumentation for
// workflow execution, namespaced "taskgraph_". It mirrors the teacher's
// PrometheusMetrics shape (gauge/histogram/counter trio, an enabled flag,
// Disable/Enable/Reset for tests) adapted from per-node engine metrics to
// per-task, semaphore-bounded workflow metrics:
//
//  1. active_tasks (gauge): permits currently held from a workflow's Semaphore.
//  2. max_concurrent (gauge): a workflow's configured semaphore capacity.
//  3. task_latency_ms (histogram): task execution duration, labeled by outcome.
//  4. retries_total (counter): retry attempts, labeled by workflow/task id.
//  5. cancellations_total (counter): tasks cancelled before running.
//  6. timeouts_total (counter): per-attempt timeout budget exceeded.
type WorkflowMetrics struct {
	activeTasks   prometheus.Gauge
	maxConcurrent prometheus.Gauge
	taskLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	timeouts      *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewWorkflowMetrics creates and registers workflow execution metrics with
// the given registry. A nil registry uses prometheus.DefaultRegisterer.
func NewWorkflowMetrics(registry prometheus.Registerer) *WorkflowMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	wm := &WorkflowMetrics{registry: registry, enabled: true}

	wm.activeTasks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskgraph",
		Name:      "active_tasks",
		Help:      "Current number of tasks holding a workflow semaphore permit",
	})
	wm.maxConcurrent = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskgraph",
		Name:      "max_concurrent",
		Help:      "Configured semaphore capacity for the workflow",
	})
	wm.taskLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskgraph",
		Name:      "task_latency_ms",
		Help:      "Task execution duration in milliseconds, across all attempts",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"workflow_id", "task_id", "status"})
	wm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskgraph",
		Name:      "retries_total",
		Help:      "Cumulative count of task retry attempts",
	}, []string{"workflow_id", "task_id"})
	wm.cancellations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskgraph",
		Name:      "cancellations_total",
		Help:      "Tasks cancelled before they started running",
	}, []string{"workflow_id", "task_id"})
	wm.timeouts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskgraph",
		Name:      "timeouts_total",
		Help:      "Task attempts that exceeded their per-attempt timeout budget",
	}, []string{"workflow_id", "task_id"})

	return wm
}

func (wm *WorkflowMetrics) RecordTaskLatency(workflowID, taskID string, latency time.Duration, status string) {
	if !wm.enabled {
		return
	}
	wm.taskLatency.WithLabelValues(workflowID, taskID, status).Observe(float64(latency.Milliseconds()))
}

func (wm *WorkflowMetrics) IncrementRetries(workflowID, taskID string) {
	if !wm.enabled {
		return
	}
	wm.retries.WithLabelValues(workflowID, taskID).Inc()
}

func (wm *WorkflowMetrics) IncrementCancellations(workflowID, taskID string) {
	if !wm.enabled {
		return
	}
	wm.cancellations.WithLabelValues(workflowID, taskID).Inc()
}

func (wm *WorkflowMetrics) IncrementTimeouts(workflowID, taskID string) {
	if !wm.enabled {
		return
	}
	wm.timeouts.WithLabelValues(workflowID, taskID).Inc()
}

func (wm *WorkflowMetrics) UpdateActiveTasks(count int) {
	if !wm.enabled {
		return
	}
	wm.activeTasks.Set(float64(count))
}

func (wm *WorkflowMetrics) UpdateMaxConcurrent(max int) {
	if !wm.enabled {
		return
	}
	wm.maxConcurrent.Set(float64(max))
}

// Disable temporarily disables metric recording (useful for testing).
func (wm *WorkflowMetrics) Disable() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (wm *WorkflowMetrics) Enable() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.enabled = true
}

// Reset zeroes the gauge values (useful for testing). Counters and
// histograms are cumulative by design and are not reset.
func (wm *WorkflowMetrics) Reset() {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.activeTasks.Set(0)
	wm.maxConcurrent.Set(0)
}
