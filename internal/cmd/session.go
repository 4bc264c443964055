package cmd

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// sessionConfig contains the streaming session configuration.
type sessionConfig struct {
	// HeartbeatInterval is the cadence of manager pings on idle connections.
	HeartbeatInterval timeutil.Duration `yaml:"heartbeat_interval"`

	// IdleTimeout is how long a connection may see no traffic before it is
	// closed.
	IdleTimeout timeutil.Duration `yaml:"idle_timeout"`

	// ShutdownGrace is how long in-flight sessions are given to finish after
	// a connection starts closing.
	ShutdownGrace timeutil.Duration `yaml:"shutdown_grace"`

	// MaxSessions is the per-connection bound on concurrent sessions.
	MaxSessions int `yaml:"max_sessions"`

	// EventQueueBound is the per-session event queue capacity.
	EventQueueBound int `yaml:"event_queue_bound"`
}

// type check
var _ validate.Interface = (*sessionConfig)(nil)

// Validate implements the [validate.Interface] interface for *sessionConfig.
// A nil config is valid and means the defaults.
func (c *sessionConfig) Validate() (err error) {
	if c == nil {
		return nil
	}

	return errors.Join(
		validate.NotNegative("heartbeat_interval", c.HeartbeatInterval),
		validate.NotNegative("idle_timeout", c.IdleTimeout),
		validate.NotNegative("shutdown_grace", c.ShutdownGrace),
		validate.NotNegative("max_sessions", c.MaxSessions),
		validate.NotNegative("event_queue_bound", c.EventQueueBound),
	)
}

// toInternal converts c to the session manager configuration.  c must be
// valid.  All arguments must not be nil.
func (c *sessionConfig) toInternal(
	comp session.Compiler,
	baseLogger *slog.Logger,
) (conf *session.Config) {
	conf = &session.Config{
		Logger:   baseLogger.With(slogutil.KeyPrefix, "session"),
		Compiler: comp,
	}

	if c == nil {
		return conf
	}

	conf.HeartbeatInterval = time.Duration(c.HeartbeatInterval)
	conf.IdleTimeout = time.Duration(c.IdleTimeout)
	conf.ShutdownGrace = time.Duration(c.ShutdownGrace)
	conf.MaxSessions = c.MaxSessions
	conf.EventQueueBound = c.EventQueueBound

	return conf
}
