package downloader_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/downloader"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 5 * time.Second

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// newDownloader is a helper constructing a downloader over pre-fetched
// content.
func newDownloader(
	tb testing.TB,
	platform string,
	prefetched map[string]string,
) (d *downloader.Downloader, coll *events.Collector) {
	tb.Helper()

	coll = events.NewCollector()
	d = downloader.New(&downloader.Config{
		Logger:     testLogger,
		Events:     coll,
		Prefetched: prefetched,
		Platform:   platform,
	})

	return d, coll
}

func TestDownloader_Download_prefetched(t *testing.T) {
	d, _ := newDownloader(t, "", map[string]string{
		"mem://h": "# hdr\r\n0.0.0.0 ads.example\n0.0.0.0 ad.test\n",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://h")
	require.NoError(t, err)

	assert.Equal(t, []string{"# hdr", "0.0.0.0 ads.example", "0.0.0.0 ad.test", ""}, lines)
}

func TestDownloader_Download_platform(t *testing.T) {
	const src = "mem://list"
	const content = "||a.com^\n" +
		"!#if windows\n" +
		"||w.com^\n" +
		"!#else\n" +
		"||m.com^\n" +
		"!#endif\n" +
		"||z.com^"

	testCases := []struct {
		name     string
		platform string
		want     []string
	}{{
		name:     "mac",
		platform: "mac",
		want:     []string{"||a.com^", "||m.com^", "||z.com^"},
	}, {
		name:     "windows",
		platform: "windows",
		want:     []string{"||a.com^", "||w.com^", "||z.com^"},
	}, {
		name:     "none",
		platform: "",
		want:     []string{"||a.com^", "||m.com^", "||z.com^"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newDownloader(t, tc.platform, map[string]string{src: content})

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			lines, err := d.Download(ctx, src)
			require.NoError(t, err)

			assert.Equal(t, tc.want, lines)
		})
	}
}

func TestDownloader_Download_nestedIf(t *testing.T) {
	const src = "mem://list"
	const content = "!#if mac\n" +
		"||outer.com^\n" +
		"!#if windows\n" +
		"||never.com^\n" +
		"!#else\n" +
		"||inner.com^\n" +
		"!#endif\n" +
		"!#endif\n" +
		"||always.com^"

	d, _ := newDownloader(t, "mac", map[string]string{src: content})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, []string{"||outer.com^", "||inner.com^", "||always.com^"}, lines)
}

func TestDownloader_Download_directiveSyntax(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{{
		name:    "unbalanced_if",
		content: "!#if mac\n||a.com^",
	}, {
		name:    "stray_endif",
		content: "||a.com^\n!#endif",
	}, {
		name:    "stray_else",
		content: "!#else\n||a.com^",
	}, {
		name:    "double_else",
		content: "!#if mac\n!#else\n!#else\n!#endif",
	}, {
		name:    "empty_if",
		content: "!#if\n!#endif",
	}, {
		name:    "empty_include",
		content: "!#include",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newDownloader(t, "mac", map[string]string{"mem://bad": tc.content})

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			_, err := d.Download(ctx, "mem://bad")

			var syntaxErr *downloader.DirectiveSyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			assert.Equal(t, "mem://bad", syntaxErr.Source)
		})
	}
}

func TestDownloader_Download_include(t *testing.T) {
	d, _ := newDownloader(t, "", map[string]string{
		"mem://main": "||top.com^\n!#include mem://inc\n||bottom.com^",
		"mem://inc":  "||included.com^",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://main")
	require.NoError(t, err)

	assert.Equal(t, []string{"||top.com^", "||included.com^", "||bottom.com^"}, lines)
}

func TestDownloader_Download_includeCycle(t *testing.T) {
	d, coll := newDownloader(t, "", map[string]string{
		"mem://a": "||a.com^\n!#include mem://b",
		"mem://b": "||b.com^\n!#include mem://a",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://a")
	require.NoError(t, err)

	// A's lines, then B's lines; the back-include of A is skipped.
	assert.Equal(t, []string{"||a.com^", "||b.com^"}, lines)

	require.Equal(t, []events.Type{events.TypeDiagnostic}, coll.Types())
}

func TestDownloader_Download_includeMissing(t *testing.T) {
	d, coll := newDownloader(t, "", map[string]string{
		"mem://main": "||a.com^\n!#include mem://absent\n||b.com^",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://main")
	require.NoError(t, err)

	// The broken include keeps the rest of the list usable.
	assert.Equal(t, []string{"||a.com^", "||b.com^"}, lines)
	assert.Equal(t, []events.Type{events.TypeDiagnostic}, coll.Types())
}

func TestDownloader_Download_includeSkippedInFalseBranch(t *testing.T) {
	d, coll := newDownloader(t, "mac", map[string]string{
		"mem://main": "!#if windows\n!#include mem://absent\n!#endif\n||a.com^",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://main")
	require.NoError(t, err)

	assert.Equal(t, []string{"||a.com^"}, lines)
	assert.Empty(t, coll.Types())
}

func TestDownloader_Download_includeDepth(t *testing.T) {
	// Each file includes the next one, past the depth bound.
	prefetched := map[string]string{
		"mem://f0": "rule0\n!#include mem://f1",
		"mem://f1": "rule1\n!#include mem://f2",
		"mem://f2": "rule2\n!#include mem://f3",
		"mem://f3": "rule3",
	}

	coll := events.NewCollector()
	d := downloader.New(&downloader.Config{
		Logger:          testLogger,
		Events:          coll,
		Prefetched:      prefetched,
		MaxIncludeDepth: 2,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, "mem://f0")
	require.NoError(t, err)

	assert.Equal(t, []string{"rule0", "rule1", "rule2"}, lines)
	assert.Equal(t, []events.Type{events.TypeDiagnostic}, coll.Types())
}

func TestDownloader_Download_files(t *testing.T) {
	dir := t.TempDir()

	mainPath := filepath.Join(dir, "main.txt")
	incPath := filepath.Join(dir, "inc.txt")

	require.NoError(t, os.WriteFile(mainPath, []byte("||a.com^\n!#include inc.txt"), 0o644))
	require.NoError(t, os.WriteFile(incPath, []byte("||b.com^"), 0o644))

	d, _ := newDownloader(t, "", nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, mainPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"||a.com^", "||b.com^"}, lines)
}

func TestDownloader_Download_http(t *testing.T) {
	const body = "||http.com^\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, writeErr := w.Write([]byte(body))
		require.NoError(t, writeErr)
	}))
	t.Cleanup(srv.Close)

	d, _ := newDownloader(t, "", nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	lines, err := d.Download(ctx, srv.URL+"/list.txt")
	require.NoError(t, err)

	assert.Equal(t, []string{"||http.com^", ""}, lines)
}

func TestDownloader_Download_httpErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/404":
			http.NotFound(w, r)
		case "/empty":
			// 200 with no body.
		}
	}))
	t.Cleanup(srv.Close)

	t.Run("not_found", func(t *testing.T) {
		d, _ := newDownloader(t, "", nil)

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		_, err := d.Download(ctx, srv.URL+"/404")

		var fetchErr *downloader.SourceFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	})

	t.Run("empty_rejected", func(t *testing.T) {
		d, _ := newDownloader(t, "", nil)

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		_, err := d.Download(ctx, srv.URL+"/empty")

		var fetchErr *downloader.SourceFetchError
		require.ErrorAs(t, err, &fetchErr)
	})

	t.Run("empty_allowed", func(t *testing.T) {
		d := downloader.New(&downloader.Config{
			Logger:             testLogger,
			AllowEmptyResponse: true,
		})

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		lines, err := d.Download(ctx, srv.URL+"/empty")
		require.NoError(t, err)

		assert.Equal(t, []string{""}, lines)
	})
}

func TestDownloader_Download_rootMissing(t *testing.T) {
	d, _ := newDownloader(t, "", nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	_, err := d.Download(ctx, filepath.Join(t.TempDir(), "absent.txt"))

	var fetchErr *downloader.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
}
