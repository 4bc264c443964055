package changedet_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/changedet"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/memkv"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// constClock is a [timeutil.Clock] returning a settable time.
type constClock struct {
	now time.Time
}

// type check
var _ timeutil.Clock = (*constClock)(nil)

// Now implements the [timeutil.Clock] interface for *constClock.
func (c *constClock) Now() (now time.Time) { return c.now }

func TestDetector_Check(t *testing.T) {
	const src = "https://example.org/list.txt"

	clock := &constClock{now: time.UnixMilli(1_700_000_000_000)}
	d := changedet.New(&changedet.Config{
		Store: memkv.New(nil),
		Clock: clock,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	// First sight.
	c, err := d.Check(ctx, src, []string{"||a.com^", "||b.com^"}, "")
	require.NoError(t, err)

	assert.True(t, c.Changed)
	assert.Nil(t, c.Previous)
	assert.Equal(t, 2, c.Current.RuleCount)
	assert.Equal(t, []string{"||a.com^", "||b.com^"}, c.Current.RuleSample)

	firstHash := c.Current.Hash

	// Same content.
	clock.now = clock.now.Add(1 * time.Hour)
	c, err = d.Check(ctx, src, []string{"||a.com^", "||b.com^"}, "")
	require.NoError(t, err)

	assert.False(t, c.Changed)
	require.NotNil(t, c.Previous)
	assert.Equal(t, firstHash, c.Previous.Hash)

	// Changed content archives the previous snapshot.
	clock.now = clock.now.Add(1 * time.Hour)
	c, err = d.Check(ctx, src, []string{"||a.com^", "||c.com^"}, `"etag-1"`)
	require.NoError(t, err)

	assert.True(t, c.Changed)
	assert.NotEqual(t, firstHash, c.Current.Hash)
	assert.Equal(t, `"etag-1"`, c.Current.ETag)

	cur, err := d.Current(ctx, src)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, c.Current.Hash, cur.Hash)

	hist, err := d.History(ctx, src, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, firstHash, hist[0].Hash)
}

func TestDetector_Check_sample(t *testing.T) {
	content := make([]string, changedet.SampleSize+5)
	for i := range content {
		content[i] = "||rule^"
	}

	d := changedet.New(&changedet.Config{Store: memkv.New(nil)})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	c, err := d.Check(ctx, "mem://big", content, "")
	require.NoError(t, err)

	assert.Len(t, c.Current.RuleSample, changedet.SampleSize)
	assert.Equal(t, len(content), c.Current.RuleCount)
}

func TestDetector_History_order(t *testing.T) {
	const src = "mem://list"

	clock := &constClock{now: time.UnixMilli(1_700_000_000_000)}
	d := changedet.New(&changedet.Config{
		Store: memkv.New(nil),
		Clock: clock,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	for _, lines := range [][]string{{"v1"}, {"v2"}, {"v3"}} {
		_, err := d.Check(ctx, src, lines, "")
		require.NoError(t, err)

		clock.now = clock.now.Add(1 * time.Hour)
	}

	hist, err := d.History(ctx, src, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	// Newest first.
	assert.Equal(t, changedet.Hash([]string{"v2"}), hist[0].Hash)
	assert.Equal(t, changedet.Hash([]string{"v1"}), hist[1].Hash)
}
