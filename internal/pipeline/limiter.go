package pipeline

// limiter.go serializes mutating pipeline runs.
//
// Loads, transforms, schema changes and resets each take a slot. When every
// slot is taken a run waits up to maxWait and then fails with RUN001. A zero
// wait fails immediately.

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentRuns is one: transforms race on insert-if-absent.
const DefaultMaxConcurrentRuns = 1

// ErrBusy is returned when no run slot frees up in time.
var ErrBusy = core.NewError(core.KindPipeline, core.CodePipelineBusy, "another pipeline run is in progress")

// RunLimiter bounds concurrent mutating runs.
type RunLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewRunLimiter creates a limiter with maxConcurrent slots.
func NewRunLimiter(maxConcurrent int64, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	return &RunLimiter{
		sem:     semaphore.NewWeighted(maxConcurrent),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must call Release when the run ends.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	if l.maxWait <= 0 {
		if !l.sem.TryAcquire(1) {
			return ErrBusy
		}
		l.active.Add(1)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		// Distinguish caller cancellation from the wait expiring.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	l.active.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *RunLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active returns the number of runs holding a slot.
func (l *RunLimiter) Active() int64 {
	return l.active.Load()
}

// WaitForDrain blocks until no run holds a slot or ctx is done.
// Used for graceful shutdown.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter.
type LimiterStatus struct {
	Active        int64 `json:"active"`
	Available     int64 `json:"available"`
	MaxConcurrent int64 `json:"max_concurrent"`
}

// Status returns the current limiter state for health checks.
func (l *RunLimiter) Status() LimiterStatus {
	active := l.Active()
	return LimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
