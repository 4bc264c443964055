package cmd

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"golang.org/x/time/rate"
)

// jobQueueConfig contains the asynchronous job queue configuration.
type jobQueueConfig struct {
	// ResultTTL is how long terminal job states are retained for polling.
	ResultTTL timeutil.Duration `yaml:"result_ttl"`

	// StatsWindow is the rolling window of the queue statistics.
	StatsWindow timeutil.Duration `yaml:"stats_window"`

	// RateLimit is the sustained submission rate in jobs per second.  Zero
	// disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`

	// Workers is the number of concurrent queue workers.
	Workers int `yaml:"workers"`

	// RateBurst is the submission burst allowance of the limiter.
	RateBurst int `yaml:"rate_burst"`
}

// type check
var _ validate.Interface = (*jobQueueConfig)(nil)

// Validate implements the [validate.Interface] interface for *jobQueueConfig.
// A nil config is valid and means the defaults.
func (c *jobQueueConfig) Validate() (err error) {
	if c == nil {
		return nil
	}

	errs := []error{
		validate.NotNegative("workers", c.Workers),
		validate.NotNegative("result_ttl", c.ResultTTL),
		validate.NotNegative("stats_window", c.StatsWindow),
		validate.NotNegative("rate_limit", c.RateLimit),
	}

	if c.RateLimit > 0 {
		errs = append(errs, validate.Positive("rate_burst", c.RateBurst))
	}

	return errors.Join(errs...)
}

// toInternal converts c to the job queue configuration.  c must be valid.
// All arguments must not be nil.
func (c *jobQueueConfig) toInternal(
	handler jobqueue.Handler,
	baseLogger *slog.Logger,
	mtrc jobqueue.Metrics,
) (conf *jobqueue.Config) {
	conf = &jobqueue.Config{
		Logger:  baseLogger.With(slogutil.KeyPrefix, "jobqueue"),
		Handler: handler,
		Metrics: mtrc,
	}

	if c == nil {
		return conf
	}

	conf.Workers = c.Workers
	conf.ResultTTL = time.Duration(c.ResultTTL)
	conf.StatsWindow = time.Duration(c.StatsWindow)
	conf.RateLimit = rate.Limit(c.RateLimit)
	conf.RateBurst = c.RateBurst

	return conf
}
