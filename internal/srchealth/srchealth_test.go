package srchealth_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/memkv"
	"github.com/AdguardTeam/HostlistCompiler/internal/srchealth"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

func TestMonitor_Record(t *testing.T) {
	const src = "https://example.org/list.txt"

	m := srchealth.New(&srchealth.Config{Store: memkv.New(nil)})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	h, err := m.Health(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, srchealth.StatusUnknown, h.Status)
	assert.Zero(t, h.TotalAttempts)

	h, err = m.Record(ctx, src, &srchealth.Attempt{
		Success:    true,
		DurationMs: 100,
		RuleCount:  1_000,
	})
	require.NoError(t, err)

	assert.Equal(t, srchealth.StatusHealthy, h.Status)
	assert.Equal(t, 1, h.TotalAttempts)
	assert.Equal(t, 1.0, h.SuccessRate)
	assert.Equal(t, 100.0, h.AverageDurationMs)
	assert.Equal(t, 1_000.0, h.AverageRuleCount)
	assert.False(t, h.IsCurrentlyFailing)
	assert.NotZero(t, h.LastSuccess)

	h, err = m.Record(ctx, src, &srchealth.Attempt{
		Success:    false,
		DurationMs: 300,
		Error:      "status 500",
	})
	require.NoError(t, err)

	assert.Equal(t, srchealth.StatusDegraded, h.Status)
	assert.Equal(t, 2, h.TotalAttempts)
	assert.Equal(t, 0.5, h.SuccessRate)
	assert.Equal(t, 200.0, h.AverageDurationMs)
	assert.True(t, h.IsCurrentlyFailing)
	assert.Equal(t, 1, h.ConsecutiveFailures)

	// The record persists across monitor instances sharing a store.
	h2, err := m.Health(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, h.TotalAttempts, h2.TotalAttempts)

	require.Len(t, h2.RecentAttempts, 2)

	// Newest first.
	assert.False(t, h2.RecentAttempts[0].Success)
	assert.True(t, h2.RecentAttempts[1].Success)
}

func TestMonitor_Record_unhealthy(t *testing.T) {
	const src = "mem://flaky"

	m := srchealth.New(&srchealth.Config{Store: memkv.New(nil)})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	var h *srchealth.Health
	var err error
	for range 3 {
		h, err = m.Record(ctx, src, &srchealth.Attempt{Error: "timeout"})
		require.NoError(t, err)
	}

	assert.Equal(t, srchealth.StatusUnhealthy, h.Status)
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.Zero(t, h.SuccessRate)

	// A success resets the failure run but the rate stays low.
	h, err = m.Record(ctx, src, &srchealth.Attempt{Success: true})
	require.NoError(t, err)

	assert.Zero(t, h.ConsecutiveFailures)
	assert.Equal(t, 0.25, h.SuccessRate)
	assert.Equal(t, srchealth.StatusUnhealthy, h.Status)
}

func TestMonitor_Record_recentBound(t *testing.T) {
	const src = "mem://busy"

	m := srchealth.New(&srchealth.Config{
		Store:     memkv.New(nil),
		MaxRecent: 3,
	})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	var h *srchealth.Health
	var err error
	for i := range 5 {
		h, err = m.Record(ctx, src, &srchealth.Attempt{
			Success:   true,
			RuleCount: i,
		})
		require.NoError(t, err)
	}

	require.Len(t, h.RecentAttempts, 3)
	assert.Equal(t, 4, h.RecentAttempts[0].RuleCount)
	assert.Equal(t, 2, h.RecentAttempts[2].RuleCount)
	assert.Equal(t, 5, h.TotalAttempts)
}
