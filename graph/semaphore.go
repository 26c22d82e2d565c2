package graph

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds the number of tasks a Workflow runs concurrently. It
// wraps golang.org/x/sync/semaphore.Weighted — the same FIFO-fair
// weighted semaphore the teacher's MaxConcurrentNodes option was, in
// effect, reimplementing by hand with a buffered channel.
type Semaphore struct {
	weighted *semaphore.Weighted
	max      int64
	active   atomic.Int64
}

// NewSemaphore returns a Semaphore admitting up to max concurrent holders.
// max <= 0 is treated as 1, matching the workflow maxConcurrent default.
func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		max = 1
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(max)),
		max:      int64(max),
	}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	s.active.Add(1)
	return nil
}

// Release returns a permit.
func (s *Semaphore) Release() {
	s.active.Add(-1)
	s.weighted.Release(1)
}

// WithLock is the scoped acquire-release helper of spec.md §4.4: acquire,
// run fn, release on every exit path (success, error, or ctx cancellation).
func (s *Semaphore) WithLock(ctx context.Context, fn func() error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return fn()
}

// Active returns the current number of held permits.
func (s *Semaphore) Active() int { return int(s.active.Load()) }

// Max returns the semaphore's capacity.
func (s *Semaphore) Max() int { return int(s.max) }

// Locked reports whether every permit is currently held.
func (s *Semaphore) Locked() bool { return s.active.Load() >= s.max }
