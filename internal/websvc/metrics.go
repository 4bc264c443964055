package websvc

import (
	"context"
	"time"
)

// Metrics is an interface that is used for the collection of the HTTP request
// statistics.
type Metrics interface {
	// ObserveRequest records one served request.  pattern is the route
	// pattern, not the raw path.
	ObserveRequest(ctx context.Context, pattern string, code int, dur time.Duration)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveRequest implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveRequest(_ context.Context, _ string, _ int, _ time.Duration) {}
