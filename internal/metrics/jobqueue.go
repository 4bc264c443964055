package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// JobQueue is the Prometheus-based implementation of the [jobqueue.Metrics]
// interface.
type JobQueue struct {
	// jobsTotal is a counter of finished jobs labeled by terminal status.
	jobsTotal *prometheus.CounterVec

	// queueLag is a histogram of the time jobs spent pending.
	queueLag prometheus.Histogram

	// pending is a gauge with the current number of pending jobs.
	pending prometheus.Gauge
}

// type check
var _ jobqueue.Metrics = (*JobQueue)(nil)

// NewJobQueue registers the job queue metrics in reg and returns a properly
// initialized [*JobQueue].
func NewJobQueue(namespace string, reg prometheus.Registerer) (m *JobQueue, err error) {
	const (
		jobsTotal = "jobs_total"
		queueLag  = "queue_lag_seconds"
		pending   = "pending_jobs"
	)

	m = &JobQueue{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      jobsTotal,
			Namespace: namespace,
			Subsystem: subsystemJobQueue,
			Help:      "Total number of finished jobs by terminal status.",
		}, []string{"status"}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      queueLag,
			Namespace: namespace,
			Subsystem: subsystemJobQueue,
			Help:      "Time jobs spent pending before a worker picked them up.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60},
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      pending,
			Namespace: namespace,
			Subsystem: subsystemJobQueue,
			Help:      "Current number of pending jobs.",
		}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   jobsTotal,
		Value: m.jobsTotal,
	}, {
		Key:   queueLag,
		Value: m.queueLag,
	}, {
		Key:   pending,
		Value: m.pending,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveJob implements the [jobqueue.Metrics] interface for *JobQueue.
func (m *JobQueue) ObserveJob(_ context.Context, status jobqueue.Status, lag time.Duration) {
	m.jobsTotal.WithLabelValues(string(status)).Inc()
	m.queueLag.Observe(lag.Seconds())
}

// SetPending implements the [jobqueue.Metrics] interface for *JobQueue.
func (m *JobQueue) SetPending(_ context.Context, n int) {
	m.pending.Set(float64(n))
}
