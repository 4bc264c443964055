// Package cachedl contains the caching downloader.  It consults the filter
// cache before the network, records every real download as a health attempt,
// and feeds fresh content through the change detector.  Cache and bookkeeping
// failures degrade to a miss or a warning; only the download itself can fail
// the call.
package cachedl

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/changedet"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/srchealth"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
)

// DefaultCacheTTL is the default lifetime of a cached source.
const DefaultCacheTTL = 1 * time.Hour

// Fetcher retrieves and preprocesses one source.
type Fetcher interface {
	Download(ctx context.Context, src string) (lines []string, err error)
}

// Downloader is a cache-first wrapper around a [Fetcher].
type Downloader struct {
	logger   *slog.Logger
	fetcher  Fetcher
	cache    *kvstore.FilterCache
	changes  *changedet.Detector
	health   *srchealth.Monitor
	events   events.Sink
	clock    timeutil.Clock
	cacheTTL time.Duration
}

// Config is the configuration structure for a [Downloader].
type Config struct {
	// Logger is used for logging the operation of the downloader.  It must
	// not be nil.
	Logger *slog.Logger

	// Fetcher performs real downloads.  It must not be nil.
	Fetcher Fetcher

	// Cache is the filter cache.  It must not be nil.
	Cache *kvstore.FilterCache

	// Changes is the change detector.  If nil, change detection is skipped.
	Changes *changedet.Detector

	// Health is the health monitor.  If nil, attempts are not recorded.
	Health *srchealth.Monitor

	// Events receives cache events and diagnostics.  If nil, events are
	// discarded.
	Events events.Sink

	// Clock is used for cache entry timestamps.  If nil, the system clock
	// is used.
	Clock timeutil.Clock

	// CacheTTL is the lifetime of a cached source.  Zero means
	// [DefaultCacheTTL].
	CacheTTL time.Duration
}

// New returns a new caching downloader.  c must not be nil.
func New(c *Config) (d *Downloader) {
	sink := c.Events
	if sink == nil {
		sink = events.Empty{}
	}

	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	ttl := c.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	return &Downloader{
		logger:   c.Logger,
		fetcher:  c.Fetcher,
		cache:    c.Cache,
		changes:  c.Changes,
		health:   c.Health,
		events:   sink,
		clock:    clock,
		cacheTTL: ttl,
	}
}

// Result is the outcome of one cache-first download.
type Result struct {
	// Rules is the downloaded and preprocessed content.
	Rules []string

	// FromCache is true when Rules came from the filter cache.
	FromCache bool

	// Changed is true when fresh content differs from the previous
	// snapshot.  It is always false for cached results.
	Changed bool
}

// Download returns the content of src, from cache when possible.  On a miss
// it downloads, records the attempt, runs change detection, and refreshes
// the cache.
func (d *Downloader) Download(ctx context.Context, src string) (res *Result, err error) {
	ent, cacheErr := d.cache.Get(ctx, src)
	if cacheErr != nil {
		// A broken cache is a miss.
		d.logger.WarnContext(ctx, "cache read", "source", src, slogutil.KeyError, cacheErr)
	}

	if ent != nil {
		d.emit(ctx, events.TypeCacheHit, src)

		return &Result{
			Rules:     ent.Content,
			FromCache: true,
		}, nil
	}

	d.emit(ctx, events.TypeCacheMiss, src)

	start := d.clock.Now()
	lines, err := d.fetcher.Download(ctx, src)
	duration := d.clock.Now().Sub(start)

	if err != nil {
		d.recordAttempt(ctx, src, &srchealth.Attempt{
			Error:      err.Error(),
			DurationMs: duration.Milliseconds(),
		})

		return nil, err
	}

	d.recordAttempt(ctx, src, &srchealth.Attempt{
		Success:    true,
		DurationMs: duration.Milliseconds(),
		RuleCount:  len(lines),
	})

	res = &Result{
		Rules: lines,
	}

	hash := changedet.Hash(lines)
	if d.changes != nil {
		c, changeErr := d.changes.Check(ctx, src, lines, "")
		if changeErr != nil {
			d.logger.WarnContext(ctx, "change detection", "source", src, slogutil.KeyError, changeErr)
		} else {
			res.Changed = c.Changed
			hash = c.Current.Hash
		}
	}

	d.store(ctx, src, lines, hash)

	return res, nil
}

// Invalidate drops the cached content of src.
func (d *Downloader) Invalidate(ctx context.Context, src string) (err error) {
	return d.cache.Invalidate(ctx, src)
}

// store refreshes the cache entry for src.  Failures degrade to a warning.
func (d *Downloader) store(ctx context.Context, src string, lines []string, hash string) {
	now := d.clock.Now()
	err := d.cache.Set(ctx, &kvstore.FilterCacheEntry{
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(d.cacheTTL),
		Source:    src,
		Hash:      hash,
		Content:   lines,
	}, d.cacheTTL)
	if err != nil {
		d.logger.WarnContext(ctx, "cache write", "source", src, slogutil.KeyError, err)

		return
	}

	d.emit(ctx, events.TypeCacheStore, src)
}

// recordAttempt folds one attempt into the health record.  Failures degrade
// to a warning.
func (d *Downloader) recordAttempt(ctx context.Context, src string, a *srchealth.Attempt) {
	if d.health == nil {
		return
	}

	_, err := d.health.Record(ctx, src, a)
	if err != nil {
		d.logger.WarnContext(ctx, "health record", "source", src, slogutil.KeyError, err)
	}
}

// emit sends one cache event.
func (d *Downloader) emit(ctx context.Context, t events.Type, src string) {
	d.events.Emit(ctx, &events.Event{
		Time: d.clock.Now(),
		Type: t,
		Data: &events.CacheData{
			Source: src,
		},
	})
}
