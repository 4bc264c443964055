// Package session contains the streaming session manager.  A connection
// multiplexes a bounded number of concurrent compilations, each identified by
// a client-chosen session id and carrying its own cancellation and event
// queue.  The package is transport-agnostic, frames go out through a
// [FrameWriter] provided by the caller.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Default tuning values for [Manager].
const (
	DefaultMaxSessions       = 3
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultShutdownGrace     = 5 * time.Second
)

// ErrIdleTimeout is returned by [Conn.Serve] when a connection has seen no
// traffic for the idle timeout.
const ErrIdleTimeout errors.Error = "idle timeout"

// Compiler starts compilations for sessions.
type Compiler interface {
	Compile(
		ctx context.Context,
		req *compiler.Request,
		sink events.Sink,
	) (res *compiler.Result, err error)
}

// type check
var _ Compiler = (*compiler.Compiler)(nil)

// Manager creates connections and carries their shared tuning.
type Manager struct {
	logger      *slog.Logger
	compiler    Compiler
	clock       timeutil.Clock
	heartbeat   time.Duration
	idleTimeout time.Duration
	grace       time.Duration
	maxSessions int
	queueBound  int
}

// Config is the configuration structure for [Manager].
type Config struct {
	// Logger is used for logging the operation of connections.  It must not
	// be nil.
	Logger *slog.Logger

	// Compiler runs the compilations.  It must not be nil.
	Compiler Compiler

	// Clock is used to get the current time.  If nil, [timeutil.SystemClock]
	// is used.
	Clock timeutil.Clock

	// HeartbeatInterval is the cadence of manager pings.  Zero means
	// [DefaultHeartbeatInterval].
	HeartbeatInterval time.Duration

	// IdleTimeout is how long a connection may see no traffic before it is
	// closed.  Zero means [DefaultIdleTimeout].
	IdleTimeout time.Duration

	// ShutdownGrace is how long in-flight sessions are given to finish after
	// the connection starts closing.  Zero means [DefaultShutdownGrace].
	ShutdownGrace time.Duration

	// MaxSessions is the per-connection bound on concurrent sessions.  Zero
	// means [DefaultMaxSessions].
	MaxSessions int

	// EventQueueBound is the per-session event queue capacity.  Zero means
	// [events.DefaultQueueBound].
	EventQueueBound int
}

// New returns a new session manager.  c must not be nil.
func New(c *Config) (m *Manager) {
	m = &Manager{
		logger:      c.Logger,
		compiler:    c.Compiler,
		clock:       c.Clock,
		heartbeat:   c.HeartbeatInterval,
		idleTimeout: c.IdleTimeout,
		grace:       c.ShutdownGrace,
		maxSessions: c.MaxSessions,
		queueBound:  c.EventQueueBound,
	}

	if m.clock == nil {
		m.clock = timeutil.SystemClock{}
	}

	if m.heartbeat == 0 {
		m.heartbeat = DefaultHeartbeatInterval
	}

	if m.idleTimeout == 0 {
		m.idleTimeout = DefaultIdleTimeout
	}

	if m.grace == 0 {
		m.grace = DefaultShutdownGrace
	}

	if m.maxSessions == 0 {
		m.maxSessions = DefaultMaxSessions
	}

	return m
}
