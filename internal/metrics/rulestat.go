package metrics

import (
	"context"

	"github.com/AdguardTeam/HostlistCompiler/internal/rulestat"
	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// RuleStat is the Prometheus-based implementation of the [rulestat.Metrics]
// interface.
type RuleStat struct {
	// distinctRules is a gauge with the estimated number of distinct rules
	// ever compiled.
	distinctRules prometheus.Gauge

	// compiledRules is a counter of all compiled rules, with repeats.
	compiledRules prometheus.Counter
}

// type check
var _ rulestat.Metrics = (*RuleStat)(nil)

// NewRuleStat registers the rule statistics metrics in reg and returns a
// properly initialized [*RuleStat].
func NewRuleStat(namespace string, reg prometheus.Registerer) (m *RuleStat, err error) {
	const (
		distinctRules = "distinct_rules_count"
		compiledRules = "compiled_rules_total"
	)

	m = &RuleStat{
		distinctRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      distinctRules,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "Estimated number of distinct rules ever compiled.",
		}),
		compiledRules: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      compiledRules,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "Total number of compiled rules, with repeats.",
		}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   distinctRules,
		Value: m.distinctRules,
	}, {
		Key:   compiledRules,
		Value: m.compiledRules,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SetDistinctRuleCount implements the [rulestat.Metrics] interface for
// *RuleStat.
func (m *RuleStat) SetDistinctRuleCount(_ context.Context, count uint64) {
	m.distinctRules.Set(float64(count))
}

// AddCompiledRules implements the [rulestat.Metrics] interface for *RuleStat.
func (m *RuleStat) AddCompiledRules(_ context.Context, n uint64) {
	m.compiledRules.Add(float64(n))
}
