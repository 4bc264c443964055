package compiler

import (
	"context"
	"time"
)

// Compile status labels reported to [Metrics].
const (
	MetricsStatusSuccess   = "success"
	MetricsStatusError     = "error"
	MetricsStatusCancelled = "cancelled"
)

// Metrics is an interface that is used for the collection of the compilation
// statistics.
type Metrics interface {
	// ObserveCompile records one finished build with its status label.
	ObserveCompile(ctx context.Context, status string, dur time.Duration, ruleCount int)

	// IncDeduplicated is called when a request attaches to an in-flight build
	// instead of running its own.
	IncDeduplicated(ctx context.Context)

	// IncResultCacheHit is called when a request is served from the result
	// cache.
	IncResultCacheHit(ctx context.Context)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveCompile implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveCompile(_ context.Context, _ string, _ time.Duration, _ int) {}

// IncDeduplicated implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncDeduplicated(_ context.Context) {}

// IncResultCacheHit implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncResultCacheHit(_ context.Context) {}
