// Package srchealth tracks rolling per-source download health.  Records live
// at "health/sources/<source>" and are updated read-modify-write; concurrent
// writers resolve by last-write-wins, which is acceptable for statistical
// data.
package srchealth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/timeutil"
)

// DefaultMaxRecent is the default number of retained recent attempts.
const DefaultMaxRecent = 10

// Status is the classified health of a source.
type Status string

// Status values.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Status classification thresholds.
const (
	// unhealthyConsecFailures is the consecutive-failure count at which a
	// source is unhealthy.
	unhealthyConsecFailures = 3

	// unhealthySuccessRate is the success rate below which a source is
	// unhealthy.
	unhealthySuccessRate = 0.5

	// degradedSuccessRate is the success rate below which a source is
	// degraded.
	degradedSuccessRate = 0.9
)

// Attempt is one download attempt.
type Attempt struct {
	// Error is the failure message.  Empty on success.
	Error string `json:"error,omitempty"`

	// Timestamp is the attempt time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp_ms"`

	// DurationMs is the attempt duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// RuleCount is the number of downloaded rules.  Zero on failure.
	RuleCount int `json:"rule_count,omitempty"`

	// Success is true when the download succeeded.
	Success bool `json:"success"`
}

// Health is the rolling health record of one source.
type Health struct {
	// Source is the source URL or path.
	Source string `json:"source"`

	// Status is the classification derived from the counters below.
	Status Status `json:"status"`

	// RecentAttempts holds up to [DefaultMaxRecent] attempts, newest first.
	RecentAttempts []*Attempt `json:"recent_attempts"`

	// TotalAttempts is the all-time attempt count.
	TotalAttempts int `json:"total_attempts"`

	// SuccessfulAttempts is the all-time success count.
	SuccessfulAttempts int `json:"successful_attempts"`

	// FailedAttempts is the all-time failure count.
	FailedAttempts int `json:"failed_attempts"`

	// SuccessRate is SuccessfulAttempts over TotalAttempts.
	SuccessRate float64 `json:"success_rate"`

	// AverageDurationMs is the running mean attempt duration.
	AverageDurationMs float64 `json:"average_duration_ms"`

	// AverageRuleCount is the running mean rule count over successful
	// attempts.
	AverageRuleCount float64 `json:"average_rule_count,omitempty"`

	// LastAttempt is the timestamp of the latest attempt, in milliseconds.
	LastAttempt int64 `json:"last_attempt,omitempty"`

	// LastSuccess is the timestamp of the latest success, in milliseconds.
	LastSuccess int64 `json:"last_success,omitempty"`

	// LastFailure is the timestamp of the latest failure, in milliseconds.
	LastFailure int64 `json:"last_failure,omitempty"`

	// ConsecutiveFailures is the current run of failures.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// IsCurrentlyFailing is true when the latest attempt failed.
	IsCurrentlyFailing bool `json:"is_currently_failing"`
}

// Monitor records attempts and classifies source health.
type Monitor struct {
	store     kvstore.Interface
	clock     timeutil.Clock
	maxRecent int
}

// Config is the configuration structure for a [Monitor].
type Config struct {
	// Store is the storage backend.  It must not be nil.
	Store kvstore.Interface

	// Clock is used for attempt timestamps.  If nil, the system clock is
	// used.
	Clock timeutil.Clock

	// MaxRecent is the number of retained recent attempts.  Zero means
	// [DefaultMaxRecent].
	MaxRecent int
}

// New returns a new health monitor.  c must not be nil.
func New(c *Config) (m *Monitor) {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	maxRecent := c.MaxRecent
	if maxRecent == 0 {
		maxRecent = DefaultMaxRecent
	}

	return &Monitor{
		store:     c.Store,
		clock:     clock,
		maxRecent: maxRecent,
	}
}

// Record folds one attempt into the health record of source and returns the
// updated record.  a.Timestamp is filled from the clock when zero.
func (m *Monitor) Record(ctx context.Context, source string, a *Attempt) (h *Health, err error) {
	if a.Timestamp == 0 {
		a.Timestamp = m.clock.Now().UnixMilli()
	}

	h, err = m.Health(ctx, source)
	if err != nil {
		return nil, err
	}

	h.fold(a, m.maxRecent)

	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("health monitor: encoding %q: %w", source, err)
	}

	err = m.store.Set(ctx, healthKey(source), data, 0)
	if err != nil {
		return nil, fmt.Errorf("health monitor: %w", err)
	}

	return h, nil
}

// Health returns the health record of source.  A source never seen yields a
// record with [StatusUnknown] and zero counters.
func (m *Monitor) Health(ctx context.Context, source string) (h *Health, err error) {
	e, err := m.store.Get(ctx, healthKey(source))
	if err != nil {
		return nil, fmt.Errorf("health monitor: reading %q: %w", source, err)
	}

	h = &Health{
		Source: source,
		Status: StatusUnknown,
	}
	if e == nil {
		return h, nil
	}

	err = json.Unmarshal(e.Data, h)
	if err != nil {
		return nil, fmt.Errorf("health monitor: decoding %q: %w", source, err)
	}

	return h, nil
}

// fold updates every derived field of h with one fresh attempt.
func (h *Health) fold(a *Attempt, maxRecent int) {
	h.TotalAttempts++
	h.LastAttempt = a.Timestamp
	h.IsCurrentlyFailing = !a.Success

	if a.Success {
		h.SuccessfulAttempts++
		h.LastSuccess = a.Timestamp
		h.ConsecutiveFailures = 0

		n := float64(h.SuccessfulAttempts)
		h.AverageRuleCount += (float64(a.RuleCount) - h.AverageRuleCount) / n
	} else {
		h.FailedAttempts++
		h.LastFailure = a.Timestamp
		h.ConsecutiveFailures++
	}

	n := float64(h.TotalAttempts)
	h.SuccessRate = float64(h.SuccessfulAttempts) / n
	h.AverageDurationMs += (float64(a.DurationMs) - h.AverageDurationMs) / n

	h.RecentAttempts = append([]*Attempt{a}, h.RecentAttempts...)
	if len(h.RecentAttempts) > maxRecent {
		h.RecentAttempts = h.RecentAttempts[:maxRecent]
	}

	h.Status = h.classify()
}

// classify derives the status from the counters.
func (h *Health) classify() (s Status) {
	switch {
	case h.TotalAttempts == 0:
		return StatusUnknown
	case h.ConsecutiveFailures >= unhealthyConsecFailures,
		h.SuccessRate < unhealthySuccessRate:
		return StatusUnhealthy
	case h.SuccessRate < degradedSuccessRate, h.ConsecutiveFailures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// healthKey returns the storage key of the health record of source.
func healthKey(source string) (key kvstore.Key) {
	return kvstore.Key{"health", "sources", source}
}
