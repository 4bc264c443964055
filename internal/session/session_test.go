package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 5 * time.Second

// chanFrameWriter is a FrameWriter that forwards frames to a channel.
type chanFrameWriter struct {
	ch chan *session.Frame
}

// newChanFrameWriter returns a writer with a generously buffered channel.
func newChanFrameWriter() (w *chanFrameWriter) {
	return &chanFrameWriter{
		ch: make(chan *session.Frame, 64),
	}
}

// WriteFrame implements the session.FrameWriter interface for
// *chanFrameWriter.
func (w *chanFrameWriter) WriteFrame(ctx context.Context, fr *session.Frame) (err error) {
	select {
	case w.ch <- fr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stubCompiler is a session.Compiler for tests.
type stubCompiler struct {
	onCompile func(
		ctx context.Context,
		req *compiler.Request,
		sink events.Sink,
	) (res *compiler.Result, err error)
}

// Compile implements the session.Compiler interface for *stubCompiler.
func (c *stubCompiler) Compile(
	ctx context.Context,
	req *compiler.Request,
	sink events.Sink,
) (res *compiler.Result, err error) {
	return c.onCompile(ctx, req, sink)
}

// quickCompiler returns a stub that emits a start and a completion event.
func quickCompiler() (c *stubCompiler) {
	return &stubCompiler{
		onCompile: func(
			ctx context.Context,
			_ *compiler.Request,
			sink events.Sink,
		) (res *compiler.Result, err error) {
			sink.Emit(ctx, &events.Event{
				Data: &events.CompileStartedData{ConfigName: "t"},
				Type: events.TypeCompileStarted,
			})
			sink.Emit(ctx, &events.Event{
				Data: &events.SourceData{Source: "mem://a"},
				Type: events.TypeSourceStart,
			})
			sink.Emit(ctx, &events.Event{
				Data: &events.CompileCompleteData{RuleCount: 1},
				Type: events.TypeCompileComplete,
			})

			return &compiler.Result{Success: true}, nil
		},
	}
}

// blockingCompiler returns a stub that waits for cancellation and a channel
// that is closed once the compile has started.
func blockingCompiler() (c *stubCompiler, started chan struct{}) {
	started = make(chan struct{})

	return &stubCompiler{
		onCompile: func(
			ctx context.Context,
			_ *compiler.Request,
			sink events.Sink,
		) (res *compiler.Result, err error) {
			close(started)

			<-ctx.Done()

			sink.Emit(context.WithoutCancel(ctx), &events.Event{
				Data: &events.CompileErrorData{Reason: "cancelled"},
				Type: events.TypeCompileCancelled,
			})

			return nil, compiler.ErrCancelled
		},
	}, started
}

// newTestManager returns a manager over comp with fast test timings.
func newTestManager(tb testing.TB, comp session.Compiler) (m *session.Manager) {
	tb.Helper()

	return session.New(&session.Config{
		Logger:            slogutil.NewDiscardLogger(),
		Compiler:          comp,
		HeartbeatInterval: 50 * time.Millisecond,
		IdleTimeout:       time.Hour,
		ShutdownGrace:     time.Second,
	})
}

// compileFrame builds a compile frame for a trivial configuration.
func compileFrame(tb testing.TB, sessID string) (fr *session.Frame) {
	tb.Helper()

	req := &compiler.Request{
		Configuration: &compiler.Configuration{
			Name: "t",
			Sources: []*compiler.SourceConfig{{
				Source: "mem://a",
			}},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(tb, err)

	return &session.Frame{
		Data:      data,
		Type:      session.FrameTypeCompile,
		SessionID: sessID,
	}
}

func TestConn_Serve_welcomeAndHeartbeat(t *testing.T) {
	w := newChanFrameWriter()
	m := newTestManager(t, quickCompiler())
	c := m.NewConn(w)

	ctx, cancel := context.WithCancel(testutil.ContextWithTimeout(t, testTimeout))

	servErr := make(chan error, 1)
	go func() { servErr <- c.Serve(ctx) }()

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	require.Equal(t, session.FrameTypeWelcome, fr.Type)

	welcome := &session.WelcomeData{}
	require.NoError(t, json.Unmarshal(fr.Data, welcome))
	assert.Equal(t, c.ID(), welcome.ConnectionID)
	assert.Contains(t, welcome.Capabilities, "compile")

	fr, _ = testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, session.FrameTypePing, fr.Type)

	cancel()

	err, _ := testutil.RequireReceive(t, servErr, testTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConn_Serve_idleTimeout(t *testing.T) {
	w := newChanFrameWriter()
	m := session.New(&session.Config{
		Logger:            slogutil.NewDiscardLogger(),
		Compiler:          quickCompiler(),
		HeartbeatInterval: 10 * time.Millisecond,
		IdleTimeout:       30 * time.Millisecond,
		ShutdownGrace:     time.Second,
	})
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	servErr := make(chan error, 1)
	go func() { servErr <- c.Serve(ctx) }()

	err, _ := testutil.RequireReceive(t, servErr, testTimeout)
	assert.ErrorIs(t, err, session.ErrIdleTimeout)
}

func TestConn_Handle_ping(t *testing.T) {
	w := newChanFrameWriter()
	m := newTestManager(t, quickCompiler())
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, &session.Frame{Type: session.FrameTypePing}))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	require.Equal(t, session.FrameTypePong, fr.Type)

	pong := &session.PongData{}
	require.NoError(t, json.Unmarshal(fr.Data, pong))
	assert.NotZero(t, pong.Timestamp)
}

func TestConn_Handle_compile(t *testing.T) {
	w := newChanFrameWriter()
	m := newTestManager(t, quickCompiler())
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, string(events.TypeCompileStarted), fr.Type)
	assert.Equal(t, "s1", fr.SessionID)

	fr, _ = testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, session.FrameTypeEvent, fr.Type)
	assert.Equal(t, events.TypeSourceStart, fr.EventType)

	fr, _ = testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, string(events.TypeCompileComplete), fr.Type)

	assert.Eventually(t, func() (ok bool) {
		return c.SessionLen() == 0
	}, testTimeout, 10*time.Millisecond)
}

func TestConn_Handle_cancel(t *testing.T) {
	w := newChanFrameWriter()
	comp, started := blockingCompiler()
	m := newTestManager(t, comp)
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))

	testutil.RequireReceive(t, started, testTimeout)

	cancelFr := &session.Frame{Type: session.FrameTypeCancel, SessionID: "s1"}
	require.NoError(t, c.Handle(ctx, cancelFr))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, string(events.TypeCompileCancelled), fr.Type)

	// Cancelling again, and cancelling a session that never existed, are
	// no-ops.
	require.NoError(t, c.Handle(ctx, cancelFr))
	require.NoError(t, c.Handle(ctx, &session.Frame{
		Type:      session.FrameTypeCancel,
		SessionID: "nonexistent",
	}))

	select {
	case fr = <-w.ch:
		t.Fatalf("unexpected frame %q", fr.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConn_Handle_sessionLimit(t *testing.T) {
	w := newChanFrameWriter()
	comp, started := blockingCompiler()
	m := session.New(&session.Config{
		Logger:        slogutil.NewDiscardLogger(),
		Compiler:      comp,
		MaxSessions:   1,
		ShutdownGrace: time.Second,
	})
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))
	testutil.RequireReceive(t, started, testTimeout)

	require.NoError(t, c.Handle(ctx, compileFrame(t, "s2")))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	require.Equal(t, session.FrameTypeError, fr.Type)
	assert.Equal(t, "s2", fr.SessionID)

	errData := &session.ErrorData{}
	require.NoError(t, json.Unmarshal(fr.Data, errData))
	assert.Contains(t, errData.Message, "too many sessions")
}

func TestConn_Handle_duplicateSession(t *testing.T) {
	w := newChanFrameWriter()
	comp, started := blockingCompiler()
	m := newTestManager(t, comp)
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))
	testutil.RequireReceive(t, started, testTimeout)

	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	require.Equal(t, session.FrameTypeError, fr.Type)
}

func TestConn_Handle_unknownFrame(t *testing.T) {
	w := newChanFrameWriter()
	m := newTestManager(t, quickCompiler())
	c := m.NewConn(w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, c.Handle(ctx, &session.Frame{Type: "bogus"}))

	fr, _ := testutil.RequireReceive(t, w.ch, testTimeout)
	assert.Equal(t, session.FrameTypeError, fr.Type)
}

func TestConn_Serve_shutdownGrace(t *testing.T) {
	w := newChanFrameWriter()
	comp, started := blockingCompiler()
	m := newTestManager(t, comp)
	c := m.NewConn(w)

	ctx, cancel := context.WithCancel(testutil.ContextWithTimeout(t, testTimeout))

	servErr := make(chan error, 1)
	go func() { servErr <- c.Serve(ctx) }()

	// Welcome.
	testutil.RequireReceive(t, w.ch, testTimeout)

	require.NoError(t, c.Handle(ctx, compileFrame(t, "s1")))
	testutil.RequireReceive(t, started, testTimeout)

	cancel()
	testutil.RequireReceive(t, servErr, testTimeout)

	// The terminal frame made it out within the grace window.
	var sawCancelled bool
	for !sawCancelled {
		fr, ok := testutil.RequireReceive(t, w.ch, testTimeout)
		require.True(t, ok)

		sawCancelled = fr.Type == string(events.TypeCompileCancelled)
	}
}
