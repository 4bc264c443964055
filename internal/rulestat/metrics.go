package rulestat

import (
	"context"
)

// Metrics is an interface that is used for the collection of the rule
// statistics.
type Metrics interface {
	// SetDistinctRuleCount sets the estimated number of distinct rules ever
	// compiled.
	SetDistinctRuleCount(ctx context.Context, count uint64)

	// AddCompiledRules adds n to the total number of compiled rules.
	AddCompiledRules(ctx context.Context, n uint64)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetDistinctRuleCount implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetDistinctRuleCount(_ context.Context, _ uint64) {}

// AddCompiledRules implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) AddCompiledRules(_ context.Context, _ uint64) {}
