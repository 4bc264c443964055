package memkv_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
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

func TestKV_setGet(t *testing.T) {
	kv := memkv.New(nil)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	key := kvstore.Key{"cache", "filters", "https://example.org/list.txt"}

	e, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	err = kv.Set(ctx, key, []byte(`{"n":1}`), 0)
	require.NoError(t, err)

	e, err = kv.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, key, e.Key)
	assert.JSONEq(t, `{"n":1}`, string(e.Data))
	assert.True(t, e.ExpiresAt.IsZero())
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)

	err = kv.Delete(ctx, key)
	require.NoError(t, err)

	e, err = kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	// Deleting a missing key is not an error.
	err = kv.Delete(ctx, key)
	require.NoError(t, err)
}

func TestKV_expiry(t *testing.T) {
	clock := &constClock{now: time.Unix(1_700_000_000, 0)}
	kv := memkv.New(&memkv.Config{Clock: clock})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	key := kvstore.Key{"snapshots", "sources", "mem://a"}

	err := kv.Set(ctx, key, []byte(`"v"`), 1*time.Minute)
	require.NoError(t, err)

	e, err := kv.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, clock.now.Add(1*time.Minute), e.ExpiresAt)

	clock.now = clock.now.Add(2 * time.Minute)

	// The expired entry is deleted eagerly on read.
	e, err = kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	s, err := kv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.EntryCount)
	assert.Equal(t, 0, s.ExpiredCount)
}

func TestKV_replaceKeepsCreatedAt(t *testing.T) {
	clock := &constClock{now: time.Unix(1_700_000_000, 0)}
	kv := memkv.New(&memkv.Config{Clock: clock})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	key := kvstore.Key{"k"}

	require.NoError(t, kv.Set(ctx, key, []byte(`1`), 0))

	created := clock.now
	clock.now = clock.now.Add(1 * time.Hour)

	require.NoError(t, kv.Set(ctx, key, []byte(`2`), 0))

	e, err := kv.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, created, e.CreatedAt)
	assert.Equal(t, clock.now, e.UpdatedAt)
}

func TestKV_list(t *testing.T) {
	kv := memkv.New(nil)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	keys := []kvstore.Key{
		{"metadata", "compilations", "list", "100"},
		{"metadata", "compilations", "list", "200"},
		{"metadata", "compilations", "list", "300"},
		{"metadata", "compilations", "other", "100"},
		{"cache", "filters", "src"},
	}
	for _, k := range keys {
		require.NoError(t, kv.Set(ctx, k, []byte(`0`), 0))
	}

	entries, err := kv.List(ctx, &kvstore.ListOptions{
		Prefix: kvstore.Key{"metadata", "compilations", "list"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, keys[0], entries[0].Key)
	assert.Equal(t, keys[2], entries[2].Key)

	entries, err = kv.List(ctx, &kvstore.ListOptions{
		Prefix:  kvstore.Key{"metadata", "compilations", "list"},
		Limit:   2,
		Reverse: true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, keys[2], entries[0].Key)
	assert.Equal(t, keys[1], entries[1].Key)
}

func TestKV_clearExpired(t *testing.T) {
	clock := &constClock{now: time.Unix(1_700_000_000, 0)}
	kv := memkv.New(&memkv.Config{Clock: clock})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	require.NoError(t, kv.Set(ctx, kvstore.Key{"a"}, []byte(`1`), 1*time.Minute))
	require.NoError(t, kv.Set(ctx, kvstore.Key{"b"}, []byte(`2`), 1*time.Hour))
	require.NoError(t, kv.Set(ctx, kvstore.Key{"c"}, []byte(`3`), 0))

	clock.now = clock.now.Add(30 * time.Minute)

	s, err := kv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.EntryCount)
	assert.Equal(t, 1, s.ExpiredCount)

	n, err := kv.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, err = kv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.EntryCount)
	assert.Equal(t, 0, s.ExpiredCount)
}
