// Package downloader contains the filter-list downloader.  It retrieves a
// source over HTTP(S), from the filesystem, or from a pre-fetched content
// map, splits it into lines, and expands the preprocessor directives "!#if",
// "!#else", "!#endif", and "!#include".
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/condexpr"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/hlchttp"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
)

// Default limits of a [Downloader].
const (
	// DefaultMaxIncludeDepth is the default bound on "!#include" nesting.
	DefaultMaxIncludeDepth = 32

	// DefaultMaxSize is the default cap on the size of one downloaded
	// source.
	DefaultMaxSize = 32 * datasize.MB

	// DefaultTimeout is the default timeout of one HTTP download.
	DefaultTimeout = 30 * time.Second
)

// Downloader retrieves and preprocesses filter-list sources.
type Downloader struct {
	logger     *slog.Logger
	http       *hlchttp.Client
	events     events.Sink
	eval       *condexpr.Evaluator
	prefetched map[string]string
	maxDepth   int
	maxSize    datasize.ByteSize
	allowEmpty bool
}

// Config is the configuration structure for a [Downloader].
type Config struct {
	// Logger is used for logging the operation of the downloader.  It must
	// not be nil.
	Logger *slog.Logger

	// Client is the HTTP client for URL sources.  If nil, a default client
	// with [DefaultTimeout] is used.
	Client *hlchttp.Client

	// Events receives diagnostics about skipped includes.  If nil,
	// diagnostics are only logged.
	Events events.Sink

	// Prefetched maps source keys to their raw content.  Sources found here
	// are not fetched over the network.
	Prefetched map[string]string

	// Platform is the current platform identifier for "!#if" conditions.
	// Empty means no platform identifier matches.
	Platform string

	// MaxIncludeDepth is the bound on "!#include" nesting.  Zero means
	// [DefaultMaxIncludeDepth].
	MaxIncludeDepth int

	// MaxNotDepth is the bound on "!" nesting in "!#if" conditions.  Zero
	// means [condexpr.DefaultMaxNotDepth].
	MaxNotDepth int

	// MaxSize is the cap on the size of one downloaded source.  Zero means
	// [DefaultMaxSize].
	MaxSize datasize.ByteSize

	// AllowEmptyResponse makes an HTTP 200 with an empty body an empty list
	// instead of an error.
	AllowEmptyResponse bool
}

// New returns a new downloader.  c must not be nil, and c.Logger must not be
// nil.
func New(c *Config) (d *Downloader) {
	httpCli := c.Client
	if httpCli == nil {
		httpCli = hlchttp.NewClient(&hlchttp.ClientConfig{
			Timeout: DefaultTimeout,
		})
	}

	sink := c.Events
	if sink == nil {
		sink = events.Empty{}
	}

	maxDepth := c.MaxIncludeDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxIncludeDepth
	}

	maxSize := c.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}

	return &Downloader{
		logger: c.Logger,
		http:   httpCli,
		events: sink,
		eval: condexpr.New(&condexpr.Config{
			Platform:    c.Platform,
			MaxNotDepth: c.MaxNotDepth,
		}),
		prefetched: c.Prefetched,
		maxDepth:   maxDepth,
		maxSize:    maxSize,
		allowEmpty: c.AllowEmptyResponse,
	}
}

// Download retrieves src, splits it into lines, and expands its preprocessor
// directives.  Retrieval errors on src itself are returned as
// *[SourceFetchError]; unbalanced or malformed directives, as
// *[DirectiveSyntaxError].  Failing includes are downgraded to diagnostics.
func (d *Downloader) Download(ctx context.Context, src string) (lines []string, err error) {
	content, err := d.fetch(ctx, src)
	if err != nil {
		if _, ok := err.(*SourceFetchError); !ok {
			err = &SourceFetchError{
				Source: src,
				Err:    err,
			}
		}

		return nil, err
	}

	ancestors := container.NewMapSet(src)

	return d.preprocess(ctx, src, splitLines(content), ancestors, 0)
}

// splitLines splits content on both CRLF and LF line endings.  Inner
// whitespace is kept.
func splitLines(content string) (lines []string) {
	lines = strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}

// fetch retrieves the raw content of src, consulting the pre-fetched map
// first and dispatching on the source scheme otherwise.
func (d *Downloader) fetch(ctx context.Context, src string) (content string, err error) {
	if c, ok := d.prefetched[src]; ok {
		return c, nil
	}

	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" {
		// A bare filesystem path.
		return d.fetchFile(src)
	}

	switch u.Scheme {
	case "http", "https":
		return d.fetchHTTP(ctx, u)
	case "file":
		return d.fetchFile(u.Path)
	default:
		return "", fmt.Errorf("source %q: unsupported scheme %q", src, u.Scheme)
	}
}

// fetchFile reads a filesystem source.
func (d *Downloader) fetchFile(path string) (content string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}

	return string(b), nil
}

// fetchHTTP downloads a URL source.
func (d *Downloader) fetchHTTP(ctx context.Context, u *url.URL) (content string, err error) {
	src := u.String()

	resp, err := d.http.Get(ctx, u)
	if err != nil {
		return "", &SourceFetchError{
			Source: src,
			Err:    err,
		}
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	if err = hlchttp.CheckStatus(resp, 200); err != nil {
		return "", &SourceFetchError{
			Source:     src,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	b, err := io.ReadAll(ioutil.LimitReader(resp.Body, uint64(d.maxSize.Bytes())))
	if err != nil {
		return "", &SourceFetchError{
			Source:     src,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("reading body: %w", err),
		}
	}

	if len(b) == 0 && !d.allowEmpty {
		return "", &SourceFetchError{
			Source:     src,
			StatusCode: resp.StatusCode,
			Err:        errors.Error("empty response"),
		}
	}

	return string(b), nil
}

// diagnostic records a non-fatal preprocessing problem.
func (d *Downloader) diagnostic(ctx context.Context, src, msg string) {
	d.logger.WarnContext(ctx, "preprocessing", "source", src, slogutil.KeyError, msg)
	events.Diagnostic(ctx, d.events, src, msg)
}

// resolveInclude resolves an include target relative to the enclosing
// source.  URL sources resolve by reference; filesystem sources, relative to
// the including file's directory.
func resolveInclude(base, target string) (resolved string) {
	if tu, err := url.Parse(target); err == nil && tu.IsAbs() {
		return target
	}

	bu, err := url.Parse(base)
	if err == nil && bu.Scheme != "" && bu.Scheme != "file" {
		return bu.ResolveReference(&url.URL{Path: target}).String()
	}

	basePath := base
	if err == nil && bu.Scheme == "file" {
		basePath = bu.Path
	}

	if filepath.IsAbs(target) {
		return target
	}

	return filepath.Join(filepath.Dir(basePath), target)
}
