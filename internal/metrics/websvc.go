package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/websvc"
	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// WebSvc is the Prometheus-based implementation of the [websvc.Metrics]
// interface.
type WebSvc struct {
	// requestsTotal is a counter of served requests labeled by route pattern
	// and status code.
	requestsTotal *prometheus.CounterVec

	// requestDuration is a histogram of request durations labeled by route
	// pattern.
	requestDuration *prometheus.HistogramVec
}

// type check
var _ websvc.Metrics = (*WebSvc)(nil)

// NewWebSvc registers the web service metrics in reg and returns a properly
// initialized [*WebSvc].
func NewWebSvc(namespace string, reg prometheus.Registerer) (m *WebSvc, err error) {
	const (
		requestsTotal   = "requests_total"
		requestDuration = "request_duration_seconds"
	)

	m = &WebSvc{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      requestsTotal,
			Namespace: namespace,
			Subsystem: subsystemWebSvc,
			Help:      "Total number of served requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      requestDuration,
			Namespace: namespace,
			Subsystem: subsystemWebSvc,
			Help:      "Request durations by route.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60},
		}, []string{"route"}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   requestsTotal,
		Value: m.requestsTotal,
	}, {
		Key:   requestDuration,
		Value: m.requestDuration,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveRequest implements the [websvc.Metrics] interface for *WebSvc.
func (m *WebSvc) ObserveRequest(
	_ context.Context,
	pattern string,
	code int,
	dur time.Duration,
) {
	m.requestsTotal.WithLabelValues(pattern, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(pattern).Observe(dur.Seconds())
}
