package cmd

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/HostlistCompiler/internal/rulestat"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/HostlistCompiler/internal/websvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// webConfig contains the HTTP API configuration.
type webConfig struct {
	// Timeout bounds reading request headers.
	Timeout timeutil.Duration `yaml:"timeout"`

	// BatchSizeMax bounds the number of requests in one batch.
	BatchSizeMax int `yaml:"batch_size_max"`
}

// type check
var _ validate.Interface = (*webConfig)(nil)

// Validate implements the [validate.Interface] interface for *webConfig.  A
// nil config is valid and means the defaults.
func (c *webConfig) Validate() (err error) {
	if c == nil {
		return nil
	}

	return errors.Join(
		validate.NotNegative("timeout", c.Timeout),
		validate.NotNegative("batch_size_max", c.BatchSizeMax),
	)
}

// toInternal converts c to the web service configuration.  c must be valid.
// All arguments must not be nil.
func (c *webConfig) toInternal(
	envs *environment,
	comp session.Compiler,
	jobs *jobqueue.Queue,
	sessions *session.Manager,
	rules rulestat.Interface,
	errColl errcoll.Interface,
	baseLogger *slog.Logger,
	mtrc websvc.Metrics,
) (conf *websvc.Config) {
	conf = &websvc.Config{
		Logger:   baseLogger.With(slogutil.KeyPrefix, "websvc"),
		ErrColl:  errColl,
		Compiler: comp,
		Jobs:     jobs,
		Sessions: sessions,
		RuleStat: rules,
		Metrics:  mtrc,
		Addr:     netutil.JoinHostPort(envs.ListenAddr.String(), envs.ListenPort),
	}

	if c == nil {
		return conf
	}

	conf.Timeout = time.Duration(c.Timeout)
	conf.BatchSizeMax = c.BatchSizeMax

	return conf
}
