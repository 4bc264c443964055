package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

func TestType_IsTerminal(t *testing.T) {
	assert.True(t, events.TypeCompileComplete.IsTerminal())
	assert.True(t, events.TypeCompileError.IsTerminal())
	assert.True(t, events.TypeCompileCancelled.IsTerminal())

	assert.False(t, events.TypeCompileStarted.IsTerminal())
	assert.False(t, events.TypeSourceDone.IsTerminal())
	assert.False(t, events.TypeDiagnostic.IsTerminal())
}

func TestQueue_order(t *testing.T) {
	q := events.NewQueue(4)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	types := []events.Type{
		events.TypeCompileStarted,
		events.TypeSourceStart,
		events.TypeSourceDone,
		events.TypeCompileComplete,
	}
	for _, et := range types {
		q.Emit(ctx, &events.Event{Type: et, Time: time.Now()})
	}

	require.Equal(t, len(types), q.Len())

	for _, want := range types {
		ev, ok := q.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, want, ev.Type)
	}

	_, ok := q.TryNext()
	assert.False(t, ok)
}

func TestQueue_backpressure(t *testing.T) {
	q := events.NewQueue(1)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	q.Emit(ctx, &events.Event{Type: events.TypeMetric})

	// The queue is full.  Emission with a cancelled context returns instead
	// of blocking forever.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		q.Emit(cancelled, &events.Event{Type: events.TypeMetric})
	}()

	testutil.RequireReceive(t, done, testTimeout)
	assert.Equal(t, 1, q.Len())
}

func TestCollector(t *testing.T) {
	c := events.NewCollector()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	events.Diagnostic(ctx, c, "https://example.org/f.txt", "include skipped")
	c.Emit(ctx, &events.Event{Type: events.TypeCompileComplete})

	assert.Equal(
		t,
		[]events.Type{events.TypeDiagnostic, events.TypeCompileComplete},
		c.Types(),
	)

	evs := c.Events()
	require.Len(t, evs, 2)

	d := testutil.RequireTypeAssert[*events.DiagnosticData](t, evs[0].Data)
	assert.Equal(t, "https://example.org/f.txt", d.Source)
	assert.Equal(t, "include skipped", d.Message)
}
