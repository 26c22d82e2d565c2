package graph

import "time"

// WorkflowOption configures a Workflow at construction, following the same
// functional-options shape the teacher used for its Engine (Option func
// applied to an internal config struct before anything is built).
type WorkflowOption func(*workflowConfig)

type workflowConfig struct {
	id            string
	maxConcurrent int
	metrics       *WorkflowMetrics
	tracer        *OTelSink
}

func defaultWorkflowConfig() *workflowConfig {
	return &workflowConfig{maxConcurrent: 1}
}

// WithWorkflowID sets a caller-chosen workflow id instead of a generated one.
func WithWorkflowID(id string) WorkflowOption {
	return func(c *workflowConfig) { c.id = id }
}

// WithMaxConcurrent sets the workflow's semaphore capacity. Values <= 0
// fall back to the default of 1.
func WithMaxConcurrent(n int) WorkflowOption {
	return func(c *workflowConfig) { c.maxConcurrent = n }
}

// WithWorkflowMetrics attaches a WorkflowMetrics collector.
func WithWorkflowMetrics(m *WorkflowMetrics) WorkflowOption {
	return func(c *workflowConfig) { c.metrics = m }
}

// WithTracing attaches an OTelSink emitting a span per FSM transition.
func WithTracing(sink *OTelSink) WorkflowOption {
	return func(c *workflowConfig) { c.tracer = sink }
}

// TaskOption configures a Task at construction time, mirroring
// WorkflowOption's shape.
type TaskOption func(*taskConfig)

type taskConfig struct {
	id         string
	reliesOn   []string
	priority   int
	retryLimit int
	backoff    time.Duration
	timeout    time.Duration
}

func defaultTaskConfig() *taskConfig {
	return &taskConfig{backoff: 200 * time.Millisecond}
}

// WithTaskID sets a caller-chosen task id instead of a generated one.
func WithTaskID(id string) TaskOption {
	return func(c *taskConfig) { c.id = id }
}

// WithReliesOn lists the ids of tasks this task depends on.
func WithReliesOn(ids ...string) TaskOption {
	return func(c *taskConfig) { c.reliesOn = append(c.reliesOn, ids...) }
}

// WithPriority sets the tie-breaker used in topological sort; higher runs
// first among tasks with no ordering constraint between them.
func WithPriority(p int) TaskOption {
	return func(c *taskConfig) { c.priority = p }
}

// WithRetryLimit sets the number of additional attempts allowed after an
// initial failure. Default 0 (no retries).
func WithRetryLimit(n int) TaskOption {
	return func(c *taskConfig) { c.retryLimit = n }
}

// WithBackoff sets the base retry delay; the actual wait before attempt
// k+1 is backoff * 2^k plus a random jitter of less than backoff.
func WithBackoff(d time.Duration) TaskOption {
	return func(c *taskConfig) { c.backoff = d }
}

// WithTimeout sets the per-attempt wall-clock budget. Zero means no timeout.
func WithTimeout(d time.Duration) TaskOption {
	return func(c *taskConfig) { c.timeout = d }
}
