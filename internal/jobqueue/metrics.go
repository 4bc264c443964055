package jobqueue

import (
	"context"
	"time"
)

// Metrics is an interface that is used for the collection of the job queue
// statistics.
type Metrics interface {
	// ObserveJob records one finished job with its terminal status and the
	// time it spent pending.
	ObserveJob(ctx context.Context, status Status, lag time.Duration)

	// SetPending sets the current number of pending jobs.
	SetPending(ctx context.Context, n int)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveJob implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveJob(_ context.Context, _ Status, _ time.Duration) {}

// SetPending implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetPending(_ context.Context, _ int) {}
