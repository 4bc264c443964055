package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/version"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/uuid"
)

// session is one in-flight compilation on a connection.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Conn is one client connection.  Frames from the client are fed in through
// [Conn.Handle] by the transport's read loop while [Conn.Serve] runs the
// heartbeat.  Sessions started on the connection outlive individual Handle
// calls and are torn down when Serve returns.
type Conn struct {
	m        *Manager
	writer   FrameWriter
	ctx      context.Context
	cancel   context.CancelFunc
	writeMu  *sync.Mutex
	mu       *sync.Mutex
	sessions map[string]*session
	lastSeen time.Time
	id       string
}

// NewConn returns a new connection writing frames to w.  The caller must run
// [Conn.Serve] for the connection to have a heartbeat and an idle timeout.
func (m *Manager) NewConn(w FrameWriter) (c *Conn) {
	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		m:        m,
		writer:   w,
		ctx:      ctx,
		cancel:   cancel,
		writeMu:  &sync.Mutex{},
		mu:       &sync.Mutex{},
		sessions: map[string]*session{},
		lastSeen: m.clock.Now(),
		id:       uuid.NewString(),
	}
}

// ID returns the connection id.
func (c *Conn) ID() (id string) { return c.id }

// Serve sends the welcome frame and then runs the heartbeat until ctx is done
// or the connection goes idle.  On return all sessions have been cancelled
// and given the shutdown grace to finish.
func (c *Conn) Serve(ctx context.Context) (err error) {
	defer c.shutdown()

	err = c.writeFrame(ctx, &Frame{
		Type: FrameTypeWelcome,
		Data: mustData(&WelcomeData{
			Version:      version.Version(),
			ConnectionID: c.id,
			Capabilities: []string{"compile", "cancel", "events"},
		}),
	})
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}

	t := time.NewTicker(c.m.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if c.idleFor() >= c.m.idleTimeout {
				return ErrIdleTimeout
			}

			err = c.writeFrame(ctx, &Frame{Type: FrameTypePing})
			if err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

// Handle processes one frame from the client.  It returns an error only when
// the reply could not be written; protocol-level problems are reported to the
// client with an error frame.
func (c *Conn) Handle(ctx context.Context, fr *Frame) (err error) {
	c.touch()

	switch fr.Type {
	case FrameTypePing:
		return c.writeFrame(ctx, &Frame{
			Type: FrameTypePong,
			Data: mustData(&PongData{Timestamp: c.m.clock.Now().UnixMilli()}),
		})
	case FrameTypePong:
		// A reply to a heartbeat ping.  Traffic only.
		return nil
	case FrameTypeCompile:
		return c.startSession(ctx, fr)
	case FrameTypeCancel:
		c.cancelSession(fr.SessionID)

		return nil
	default:
		return c.writeError(ctx, fr.SessionID, fmt.Sprintf("unknown frame type %q", fr.Type))
	}
}

// startSession begins a new compilation session from a compile frame.
func (c *Conn) startSession(ctx context.Context, fr *Frame) (err error) {
	if fr.SessionID == "" {
		return c.writeError(ctx, "", "compile: session_id cannot be empty")
	}

	req := &compiler.Request{}
	err = json.Unmarshal(fr.Data, req)
	if err != nil {
		return c.writeError(ctx, fr.SessionID, fmt.Sprintf("compile: bad request: %s", err))
	}

	c.mu.Lock()

	if _, ok := c.sessions[fr.SessionID]; ok {
		c.mu.Unlock()

		return c.writeError(ctx, fr.SessionID, fmt.Sprintf(
			"compile: session %q already exists",
			fr.SessionID,
		))
	}

	if len(c.sessions) >= c.m.maxSessions {
		c.mu.Unlock()

		return c.writeError(ctx, fr.SessionID, "compile: too many sessions")
	}

	sessCtx, cancel := context.WithCancel(c.ctx)
	s := &session{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.sessions[fr.SessionID] = s

	c.mu.Unlock()

	q := events.NewQueue(c.m.queueBound)

	go c.pump(fr.SessionID, s, q)
	go c.runCompile(sessCtx, fr.SessionID, req, q)

	return nil
}

// runCompile runs the compilation for a session.  Terminal outcomes reach the
// client through the event queue, so the returned error is only logged.
func (c *Conn) runCompile(
	ctx context.Context,
	id string,
	req *compiler.Request,
	q *events.Queue,
) {
	_, err := c.m.compiler.Compile(ctx, req, q)
	if err != nil {
		c.m.logger.DebugContext(
			ctx,
			"session compile finished",
			"conn_id", c.id,
			"session_id", id,
			slogutil.KeyError, err,
		)
	}
}

// pump drains the session's event queue onto the connection writer.  It ends
// after the terminal event, which the orchestrator always emits.
func (c *Conn) pump(id string, s *session, q *events.Queue) {
	defer close(s.done)
	defer c.removeSession(id)

	for {
		ev, ok := q.Next(c.ctx)
		if !ok {
			return
		}

		err := c.writeEvent(c.ctx, id, ev)
		if err != nil {
			c.m.logger.Debug(
				"writing session event",
				"conn_id", c.id,
				"session_id", id,
				slogutil.KeyError, err,
			)

			return
		}

		if ev.Type.IsTerminal() {
			return
		}
	}
}

// writeEvent writes one orchestrator event as a frame.  compile:started and
// the terminal events are top-level frame types; everything else is wrapped
// in an event frame.
func (c *Conn) writeEvent(ctx context.Context, id string, ev *events.Event) (err error) {
	c.touch()

	fr := &Frame{
		Type:      FrameTypeEvent,
		SessionID: id,
		EventType: ev.Type,
		Data:      mustData(ev.Data),
	}
	if ev.Type == events.TypeCompileStarted || ev.Type.IsTerminal() {
		fr.Type = string(ev.Type)
		fr.EventType = ""
	}

	return c.writeFrame(ctx, fr)
}

// cancelSession cancels the named session.  Cancelling an unknown or already
// finished session is a no-op.
func (c *Conn) cancelSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[id]; ok {
		s.cancel()
	}
}

// removeSession forgets a finished session, freeing its slot.
func (c *Conn) removeSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[id]; ok {
		s.cancel()
		delete(c.sessions, id)
	}
}

// SessionLen returns the number of in-flight sessions.
func (c *Conn) SessionLen() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sessions)
}

// shutdown cancels all sessions, waits out the grace window for their
// terminal events to be written, and releases the connection context.
func (c *Conn) shutdown() {
	c.mu.Lock()
	doneChs := make([]chan struct{}, 0, len(c.sessions))
	for _, s := range c.sessions {
		s.cancel()
		doneChs = append(doneChs, s.done)
	}
	c.mu.Unlock()

	deadline := time.NewTimer(c.m.grace)
	defer deadline.Stop()

	for _, done := range doneChs {
		select {
		case <-done:
		case <-deadline.C:
			c.cancel()

			return
		}
	}

	c.cancel()
}

// touch records traffic on the connection for idle detection.
func (c *Conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSeen = c.m.clock.Now()
}

// idleFor returns how long the connection has seen no traffic.
func (c *Conn) idleFor() (d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.m.clock.Now().Sub(c.lastSeen)
}

// writeFrame writes one frame, serializing access to the writer.
func (c *Conn) writeFrame(ctx context.Context, fr *Frame) (err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writer.WriteFrame(ctx, fr)
}

// writeError writes an error frame.
func (c *Conn) writeError(ctx context.Context, id, msg string) (err error) {
	return c.writeFrame(ctx, &Frame{
		Type:      FrameTypeError,
		SessionID: id,
		Data:      mustData(&ErrorData{Message: msg}),
	})
}
