package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// Compiler is the Prometheus-based implementation of the [compiler.Metrics]
// interface.
type Compiler struct {
	// compilesTotal is a counter of finished builds labeled by status.
	compilesTotal *prometheus.CounterVec

	// compileDuration is a histogram of successful build durations.
	compileDuration prometheus.Histogram

	// lastRuleCount is a gauge with the rule count of the last successful
	// build.
	lastRuleCount prometheus.Gauge

	// deduplicated is a counter of requests that attached to an in-flight
	// build.
	deduplicated prometheus.Counter

	// resultCacheHits is a counter of requests served from the result cache.
	resultCacheHits prometheus.Counter
}

// type check
var _ compiler.Metrics = (*Compiler)(nil)

// NewCompiler registers the compilation metrics in reg and returns a properly
// initialized [*Compiler].
func NewCompiler(namespace string, reg prometheus.Registerer) (m *Compiler, err error) {
	const (
		compilesTotal   = "compiles_total"
		compileDuration = "compile_duration_seconds"
		lastRuleCount   = "last_rule_count"
		deduplicated    = "deduplicated_total"
		resultCacheHits = "result_cache_hits_total"
	)

	m = &Compiler{
		compilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      compilesTotal,
			Namespace: namespace,
			Subsystem: subsystemCompiler,
			Help:      "Total number of finished builds by status.",
		}, []string{"status"}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      compileDuration,
			Namespace: namespace,
			Subsystem: subsystemCompiler,
			Help:      "Duration of successful builds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		lastRuleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      lastRuleCount,
			Namespace: namespace,
			Subsystem: subsystemCompiler,
			Help:      "Rule count of the last successful build.",
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      deduplicated,
			Namespace: namespace,
			Subsystem: subsystemCompiler,
			Help:      "Requests that attached to an in-flight identical build.",
		}),
		resultCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      resultCacheHits,
			Namespace: namespace,
			Subsystem: subsystemCompiler,
			Help:      "Requests served from the result cache.",
		}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   compilesTotal,
		Value: m.compilesTotal,
	}, {
		Key:   compileDuration,
		Value: m.compileDuration,
	}, {
		Key:   lastRuleCount,
		Value: m.lastRuleCount,
	}, {
		Key:   deduplicated,
		Value: m.deduplicated,
	}, {
		Key:   resultCacheHits,
		Value: m.resultCacheHits,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveCompile implements the [compiler.Metrics] interface for *Compiler.
func (m *Compiler) ObserveCompile(
	_ context.Context,
	status string,
	dur time.Duration,
	ruleCount int,
) {
	m.compilesTotal.WithLabelValues(status).Inc()

	if status == compiler.MetricsStatusSuccess {
		m.compileDuration.Observe(dur.Seconds())
		m.lastRuleCount.Set(float64(ruleCount))
	}
}

// IncDeduplicated implements the [compiler.Metrics] interface for *Compiler.
func (m *Compiler) IncDeduplicated(_ context.Context) {
	m.deduplicated.Inc()
}

// IncResultCacheHit implements the [compiler.Metrics] interface for
// *Compiler.
func (m *Compiler) IncResultCacheHit(_ context.Context) {
	m.resultCacheHits.Inc()
}
