// Package compiler contains the compilation orchestrator.  It validates the
// configuration, fingerprints it, deduplicates concurrent identical
// requests, consults the result cache, fans out per-source downloads and
// transformations, merges the outputs, applies the list-wide pass and
// include/exclude filters, and emits the final list with a header and a
// checksum, streaming progress events along the way.
package compiler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/hlchttp"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/pipeline"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	gocache "github.com/patrickmn/go-cache"
)

// Compiler defaults.
const (
	// DefaultWorkerCap is the default bound on parallel per-source work.
	DefaultWorkerCap = 8

	// DefaultResultCacheTTL is the default lifetime of cached compilation
	// results.
	DefaultResultCacheTTL = 1 * time.Hour
)

// ErrCancelled is returned when a compilation observes cancellation at a
// checkpoint.
const ErrCancelled errors.Error = "compilation cancelled"

// Compiler is the compilation orchestrator.
type Compiler struct {
	logger    *slog.Logger
	errColl   errcoll.Interface
	store     kvstore.Interface
	http      *hlchttp.Client
	pipeline  *pipeline.Pipeline
	metaLog   *kvstore.MetadataLog
	results   *gocache.Cache
	clock     timeutil.Clock
	metrics   Metrics
	inflight  map[string]*inflightCompile
	mu        *sync.Mutex
	downloads atomic.Uint64

	workerCap       int
	includeMaxDepth int
	notMaxDepth     int
	sourceCacheTTL  time.Duration
	resultCacheTTL  time.Duration
}

// Config is the configuration structure for a [Compiler].
type Config struct {
	// Logger is used for logging the operation of the compiler.  It must
	// not be nil.
	Logger *slog.Logger

	// ErrColl collects internal errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Store is the storage backend shared by the filter cache, change
	// detector, health monitor, and compilation history.  It must not be
	// nil.
	Store kvstore.Interface

	// HTTPClient retrieves URL sources.  If nil, a default client is used.
	HTTPClient *hlchttp.Client

	// Clock is used for timestamps and durations.  If nil, the system
	// clock is used.
	Clock timeutil.Clock

	// Metrics is used for the collection of the compilation statistics.  If
	// nil, [EmptyMetrics] is used.
	Metrics Metrics

	// RemoveModifiers is the deny-list of the RemoveModifiers
	// transformation.  If nil, the pipeline default is used.
	RemoveModifiers []string

	// WorkerCap bounds parallel per-source work.  Zero means
	// [DefaultWorkerCap].
	WorkerCap int

	// IncludeMaxDepth bounds "!#include" nesting.  Zero means the
	// downloader default.
	IncludeMaxDepth int

	// NotMaxDepth bounds "!" nesting in "!#if" conditions.  Zero means the
	// evaluator default.
	NotMaxDepth int

	// SourceCacheTTL is the filter cache lifetime.  Zero means the caching
	// downloader default.
	SourceCacheTTL time.Duration

	// ResultCacheTTL is the result cache lifetime.  Zero means
	// [DefaultResultCacheTTL].
	ResultCacheTTL time.Duration
}

// New returns a new compiler.  c must not be nil.
func New(c *Config) (comp *Compiler) {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	workerCap := c.WorkerCap
	if workerCap == 0 {
		workerCap = DefaultWorkerCap
	}

	resTTL := c.ResultCacheTTL
	if resTTL == 0 {
		resTTL = DefaultResultCacheTTL
	}

	var mtrc Metrics = EmptyMetrics{}
	if c.Metrics != nil {
		mtrc = c.Metrics
	}

	return &Compiler{
		logger:  c.Logger,
		errColl: c.ErrColl,
		store:   c.Store,
		http:    c.HTTPClient,
		pipeline: pipeline.New(&pipeline.Config{
			Logger:          c.Logger,
			RemoveModifiers: c.RemoveModifiers,
		}),
		metaLog:  kvstore.NewMetadataLog(c.Store),
		results:  gocache.New(resTTL, resTTL),
		clock:    clock,
		metrics:  mtrc,
		inflight: map[string]*inflightCompile{},
		mu:       &sync.Mutex{},

		workerCap:       workerCap,
		includeMaxDepth: c.IncludeMaxDepth,
		notMaxDepth:     c.NotMaxDepth,
		sourceCacheTTL:  c.SourceCacheTTL,
		resultCacheTTL:  resTTL,
	}
}

// inflightCompile is one in-flight build of a fingerprint.  Concurrent
// requests for the same fingerprint attach to it instead of rebuilding.
type inflightCompile struct {
	res  *Result
	err  error
	done chan struct{}
}

// Downloads returns the number of real source downloads performed so far.
func (c *Compiler) Downloads() (n uint64) {
	return c.downloads.Load()
}

// Compile compiles one configuration, streaming progress events into sink.
// sink may be nil.  The event stream always ends with a terminal event.
func (c *Compiler) Compile(
	ctx context.Context,
	req *Request,
	sink events.Sink,
) (res *Result, err error) {
	if sink == nil {
		sink = events.Empty{}
	}

	err = ValidateConfiguration(req.Configuration)
	if err != nil {
		c.emitError(ctx, sink, "configuration", err)

		return nil, err
	}

	conf := req.Configuration
	fp := Fingerprint(conf, req.PreFetched)

	c.emit(ctx, sink, events.TypeCompileStarted, &events.CompileStartedData{
		ConfigName:  conf.Name,
		Fingerprint: fp,
		SourceCount: len(conf.Sources),
	})

	// The fence mutex is never held across the build itself.
	c.mu.Lock()
	if fl, ok := c.inflight[fp]; ok {
		c.mu.Unlock()

		return c.attach(ctx, sink, fl)
	}

	fl := &inflightCompile{done: make(chan struct{})}
	c.inflight[fp] = fl
	c.mu.Unlock()

	res, err = c.buildOrCached(ctx, req, sink, fp)

	fl.res, fl.err = res, err

	c.mu.Lock()
	delete(c.inflight, fp)
	c.mu.Unlock()

	close(fl.done)

	return res, err
}

// attach waits for an in-flight build of the same fingerprint and returns
// its result marked as deduplicated.
func (c *Compiler) attach(
	ctx context.Context,
	sink events.Sink,
	fl *inflightCompile,
) (res *Result, err error) {
	select {
	case <-fl.done:
		// Continue below.
	case <-ctx.Done():
		c.emit(context.WithoutCancel(ctx), sink, events.TypeCompileCancelled, nil)

		return nil, ErrCancelled
	}

	if fl.err != nil {
		c.emitError(ctx, sink, "deduplicated", fl.err)

		return nil, fl.err
	}

	res = fl.res.clone()
	res.Deduplicated = true

	c.metrics.IncDeduplicated(ctx)
	c.emitComplete(ctx, sink, res)

	return res, nil
}

// buildOrCached consults the result cache before running a real build.
func (c *Compiler) buildOrCached(
	ctx context.Context,
	req *Request,
	sink events.Sink,
	fp string,
) (res *Result, err error) {
	if v, ok := c.results.Get(fp); ok {
		res = v.(*Result).clone()
		res.Cached = true

		c.metrics.IncResultCacheHit(ctx)
		c.emitComplete(ctx, sink, res)

		return res, nil
	}

	res, err = c.build(ctx, req, sink)
	if err != nil {
		status := MetricsStatusError
		if errors.Is(err, ErrCancelled) {
			status = MetricsStatusCancelled
		}

		c.metrics.ObserveCompile(ctx, status, 0, 0)

		return nil, err
	}

	dur := time.Duration(res.Metrics["duration_ms"]) * time.Millisecond
	c.metrics.ObserveCompile(ctx, MetricsStatusSuccess, dur, res.RuleCount)

	c.results.Set(fp, res, c.resultCacheTTL)

	return res, nil
}
