package cachedl_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/cachedl"
	"github.com/AdguardTeam/HostlistCompiler/internal/changedet"
	"github.com/AdguardTeam/HostlistCompiler/internal/downloader"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/memkv"
	"github.com/AdguardTeam/HostlistCompiler/internal/srchealth"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// countingFetcher wraps a [cachedl.Fetcher] counting real downloads.
type countingFetcher struct {
	fetcher cachedl.Fetcher
	count   int
}

// type check
var _ cachedl.Fetcher = (*countingFetcher)(nil)

// Download implements the [cachedl.Fetcher] interface for *countingFetcher.
func (f *countingFetcher) Download(
	ctx context.Context,
	src string,
) (lines []string, err error) {
	f.count++

	return f.fetcher.Download(ctx, src)
}

// newTestDownloader builds a caching downloader over pre-fetched content and
// an in-memory store.
func newTestDownloader(
	tb testing.TB,
	prefetched map[string]string,
) (d *cachedl.Downloader, fetcher *countingFetcher, store kvstore.Interface, coll *events.Collector) {
	tb.Helper()

	store = memkv.New(nil)
	coll = events.NewCollector()
	fetcher = &countingFetcher{
		fetcher: downloader.New(&downloader.Config{
			Logger:     testLogger,
			Prefetched: prefetched,
		}),
	}

	d = cachedl.New(&cachedl.Config{
		Logger:  testLogger,
		Fetcher: fetcher,
		Cache:   kvstore.NewFilterCache(store),
		Changes: changedet.New(&changedet.Config{Store: store}),
		Health:  srchealth.New(&srchealth.Config{Store: store}),
		Events:  coll,
	})

	return d, fetcher, store, coll
}

func TestDownloader_Download(t *testing.T) {
	const src = "mem://list"

	d, fetcher, store, coll := newTestDownloader(t, map[string]string{
		src: "||a.com^\n||b.com^",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	res, err := d.Download(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, []string{"||a.com^", "||b.com^"}, res.Rules)
	assert.False(t, res.FromCache)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, fetcher.count)

	// Second call is served from cache.
	res, err = d.Download(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, []string{"||a.com^", "||b.com^"}, res.Rules)
	assert.True(t, res.FromCache)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, fetcher.count)

	assert.Equal(t, []events.Type{
		events.TypeCacheMiss,
		events.TypeCacheStore,
		events.TypeCacheHit,
	}, coll.Types())

	// The health monitor saw exactly one attempt.
	h, err := srchealth.New(&srchealth.Config{Store: store}).Health(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, h.TotalAttempts)
	assert.Equal(t, srchealth.StatusHealthy, h.Status)
}

func TestDownloader_Download_invalidate(t *testing.T) {
	const src = "mem://list"

	d, fetcher, _, _ := newTestDownloader(t, map[string]string{
		src: "||a.com^",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	_, err := d.Download(ctx, src)
	require.NoError(t, err)

	err = d.Invalidate(ctx, src)
	require.NoError(t, err)

	res, err := d.Download(ctx, src)
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, 2, fetcher.count)

	// Unchanged content is detected as such on the refetch.
	assert.False(t, res.Changed)
}

func TestDownloader_Download_failure(t *testing.T) {
	const src = "mem://absent"

	d, _, store, _ := newTestDownloader(t, nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	_, err := d.Download(ctx, src)

	var fetchErr *downloader.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)

	// The failure is recorded to health.
	h, err := srchealth.New(&srchealth.Config{Store: store}).Health(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, h.FailedAttempts)
	assert.True(t, h.IsCurrentlyFailing)

	// Nothing was cached.
	ent, err := kvstore.NewFilterCache(store).Get(ctx, src)
	require.NoError(t, err)
	assert.Nil(t, ent)
}
