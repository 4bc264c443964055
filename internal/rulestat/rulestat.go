// Package rulestat contains the compiled-rule statistics collector.  It keeps
// a HyperLogLog estimate of the number of distinct rules the service has ever
// compiled, alongside exact counters of compiled rules.
package rulestat

import (
	"context"
	"strings"
	"sync"

	"github.com/axiomhq/hyperloglog"
)

// Interface is the rule statistics collector interface.
//
// All methods must be safe for concurrent use.
type Interface interface {
	Collect(ctx context.Context, rules []string)
}

// type check
var _ Interface = Empty{}

// Empty is an Interface implementation that does nothing.
type Empty struct{}

// Collect implements the Interface interface for Empty.
func (Empty) Collect(_ context.Context, _ []string) {}

// Counter is the HyperLogLog-backed rule statistics collector.
type Counter struct {
	metrics Metrics

	// mu protects sketch and compiled.
	mu       *sync.Mutex
	sketch   *hyperloglog.Sketch
	compiled uint64
}

// Config is the configuration structure for [Counter].
type Config struct {
	// Metrics is used for the collection of the statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics
}

// New returns a new rule statistics counter.  c may be nil.
func New(c *Config) (s *Counter) {
	s = &Counter{
		metrics: EmptyMetrics{},
		mu:      &sync.Mutex{},
		sketch:  hyperloglog.New(),
	}

	if c != nil && c.Metrics != nil {
		s.metrics = c.Metrics
	}

	return s
}

// type check
var _ Interface = (*Counter)(nil)

// Collect implements the [Interface] interface for *Counter.  Comments and
// blank lines are not counted.
func (s *Counter) Collect(ctx context.Context, rules []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n uint64
	for _, r := range rules {
		if r == "" || strings.HasPrefix(r, "!") {
			continue
		}

		s.sketch.Insert([]byte(r))
		n++
	}

	s.compiled += n

	s.metrics.AddCompiledRules(ctx, n)
	s.metrics.SetDistinctRuleCount(ctx, s.sketch.Estimate())
}

// Estimate returns the approximate number of distinct rules ever collected.
func (s *Counter) Estimate() (n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sketch.Estimate()
}

// Compiled returns the exact number of rules ever collected, with repeats.
func (s *Counter) Compiled() (n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.compiled
}
