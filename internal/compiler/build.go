package compiler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/cachedl"
	"github.com/AdguardTeam/HostlistCompiler/internal/changedet"
	"github.com/AdguardTeam/HostlistCompiler/internal/downloader"
	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/pipeline"
	"github.com/AdguardTeam/HostlistCompiler/internal/srchealth"
	"github.com/AdguardTeam/HostlistCompiler/internal/version"
	"github.com/google/renameio/v2"
)

// build runs one real compilation.
func (c *Compiler) build(
	ctx context.Context,
	req *Request,
	sink events.Sink,
) (res *Result, err error) {
	start := c.clock.Now()
	conf := req.Configuration

	dl := c.newDownloader(req, sink)
	loader := newPatternLoader(dl)

	srcResults, err := c.fanOut(ctx, conf, dl, loader, sink)
	if err != nil {
		return nil, c.terminate(ctx, sink, err)
	}

	body := mergeSources(conf, srcResults)

	// Checkpoints between the list-wide stages.
	if err = ctx.Err(); err != nil {
		return nil, c.terminate(ctx, sink, err)
	}

	body = c.pipeline.Apply(ctx, conf.Transformations, pipeline.ScopeList, "", body)

	if err = ctx.Err(); err != nil {
		return nil, c.terminate(ctx, sink, err)
	}

	incl, excl := loader.load(ctx, sink, "", listPatterns(conf))
	body = filterRules(body, incl, excl)

	now := c.clock.Now()
	header := buildHeader(conf, now)
	full := make([]string, 0, 2+len(header)+len(body))
	full = append(full, "!")
	full = append(full, header...)
	full = append(full, body...)

	cs := checksumLine(full)
	final := make([]string, 0, len(full)+1)
	final = append(final, "!", cs)
	final = append(final, full[1:]...)
	full = final

	if err = ctx.Err(); err != nil {
		return nil, c.terminate(ctx, sink, err)
	}

	duration := now.Sub(start)
	res = &Result{
		CompiledAt: now,
		Rules:      full,
		RuleCount:  len(full),
		Success:    true,
		Metrics: map[string]int64{
			"sources":     int64(len(conf.Sources)),
			"rules":       int64(len(full)),
			"duration_ms": duration.Milliseconds(),
		},
	}

	if req.Benchmark {
		for _, sr := range srcResults {
			res.Metrics["download_ms"] += sr.durationMs
		}
	}

	res.PreviousVersion = c.previousVersion(ctx, conf.Name)

	err = c.persist(ctx, req, res, duration)
	if err != nil {
		return nil, c.terminate(ctx, sink, err)
	}

	c.emitComplete(ctx, sink, res)

	return res, nil
}

// srcResult is the per-source outcome of the fan-out stage.
type srcResult struct {
	err        error
	rules      []string
	durationMs int64
	fromCache  bool
}

// fanOut downloads and transforms every source in parallel, bounded by the
// worker cap.  Outputs keep configuration order.
func (c *Compiler) fanOut(
	ctx context.Context,
	conf *Configuration,
	dl *cachedl.Downloader,
	loader *patternLoader,
	sink events.Sink,
) (results []*srcResult, err error) {
	results = make([]*srcResult, len(conf.Sources))

	wg := &sync.WaitGroup{}
	sem := make(chan struct{}, c.workerCap)
	for i, src := range conf.Sources {
		// Cancellation checkpoint between sources.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(i int, src *SourceConfig) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = c.compileSource(ctx, src, dl, loader, sink)
		}(i, src)
	}

	wg.Wait()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	for i, sr := range results {
		if sr == nil {
			return nil, fmt.Errorf("source %q: not compiled", conf.Sources[i].Source)
		} else if sr.err != nil {
			return nil, sr.err
		}
	}

	return results, nil
}

// compileSource downloads one source, applies its transformations, and
// filters it with its inclusions and exclusions.
func (c *Compiler) compileSource(
	ctx context.Context,
	src *SourceConfig,
	dl *cachedl.Downloader,
	loader *patternLoader,
	sink events.Sink,
) (sr *srcResult) {
	c.emit(ctx, sink, events.TypeSourceStart, &events.SourceData{
		Name:   src.Name,
		Source: src.Source,
	})

	start := c.clock.Now()

	dres, err := dl.Download(ctx, src.Source)
	if err != nil {
		c.emit(ctx, sink, events.TypeSourceError, &events.SourceErrorData{
			Name:   src.Name,
			Source: src.Source,
			Error:  err.Error(),
		})

		return &srcResult{err: err}
	}

	rules := c.pipeline.Apply(
		ctx,
		src.Transformations,
		pipeline.ScopeSource,
		src.Source,
		dres.Rules,
	)

	incl, excl := loader.load(ctx, sink, src.Source, sourcePatterns(src))
	rules = filterRules(rules, incl, excl)

	durationMs := c.clock.Now().Sub(start).Milliseconds()
	c.emit(ctx, sink, events.TypeSourceDone, &events.SourceDoneData{
		Name:       src.Name,
		Source:     src.Source,
		RuleCount:  len(rules),
		DurationMs: durationMs,
		FromCache:  dres.FromCache,
	})

	return &srcResult{
		rules:      rules,
		durationMs: durationMs,
		fromCache:  dres.FromCache,
	}
}

// newDownloader builds the per-request caching downloader, wired to the
// shared store and counting real downloads.
func (c *Compiler) newDownloader(req *Request, sink events.Sink) (dl *cachedl.Downloader) {
	fetcher := &countingFetcher{
		compiler: c,
		fetcher: downloader.New(&downloader.Config{
			Logger:          c.logger,
			Client:          c.http,
			Events:          sink,
			Prefetched:      req.PreFetched,
			Platform:        req.Platform,
			MaxIncludeDepth: c.includeMaxDepth,
			MaxNotDepth:     c.notMaxDepth,
		}),
	}

	return cachedl.New(&cachedl.Config{
		Logger:   c.logger,
		Fetcher:  fetcher,
		Cache:    kvstore.NewFilterCache(c.store),
		Changes:  changedet.New(&changedet.Config{Store: c.store, Clock: c.clock}),
		Health:   srchealth.New(&srchealth.Config{Store: c.store, Clock: c.clock}),
		Events:   sink,
		Clock:    c.clock,
		CacheTTL: c.sourceCacheTTL,
	})
}

// countingFetcher counts real downloads on its compiler.
type countingFetcher struct {
	compiler *Compiler
	fetcher  cachedl.Fetcher
}

// type check
var _ cachedl.Fetcher = (*countingFetcher)(nil)

// Download implements the [cachedl.Fetcher] interface for *countingFetcher.
func (f *countingFetcher) Download(
	ctx context.Context,
	src string,
) (lines []string, err error) {
	f.compiler.downloads.Add(1)

	return f.fetcher.Download(ctx, src)
}

// mergeSources concatenates per-source outputs in configuration order, each
// prefixed with its separator block.
func mergeSources(conf *Configuration, results []*srcResult) (merged []string) {
	for i, src := range conf.Sources {
		merged = append(merged, "!")
		if src.Name != "" {
			merged = append(merged, "! Source name: "+src.Name)
		}

		merged = append(merged, "! Source: "+src.Source, "!")
		merged = append(merged, results[i].rules...)
	}

	return merged
}

// buildHeader builds the header block of the compiled list.
func buildHeader(conf *Configuration, now time.Time) (header []string) {
	header = []string{"! Title: " + conf.Name}

	optional := []struct {
		name  string
		value string
	}{
		{name: "Description", value: conf.Description},
		{name: "Version", value: conf.Version},
		{name: "Homepage", value: conf.Homepage},
		{name: "License", value: conf.License},
	}
	for _, f := range optional {
		if f.value != "" {
			header = append(header, fmt.Sprintf("! %s: %s", f.name, f.value))
		}
	}

	header = append(
		header,
		"! Last modified: "+now.UTC().Format(time.RFC3339),
		"!",
		fmt.Sprintf("! Compiled by %s v%s", version.Name(), version.Version()),
		"!",
	)

	return header
}

// previousVersion returns the list version of the latest recorded
// compilation of configName.  Failures degrade to an empty string.
func (c *Compiler) previousVersion(ctx context.Context, configName string) (v string) {
	mds, err := c.metaLog.History(ctx, configName, 1)
	if err != nil || len(mds) == 0 {
		return ""
	}

	return mds[0].ListVersion
}

// persist writes the output file, when requested, and appends the
// compilation record to history.  History failures degrade to a warning.
func (c *Compiler) persist(
	ctx context.Context,
	req *Request,
	res *Result,
	duration time.Duration,
) (err error) {
	conf := req.Configuration

	if req.OutputPath != "" {
		data := []byte(strings.Join(res.Rules, "\n"))
		err = renameio.WriteFile(req.OutputPath, data, 0o644)
		if err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	histErr := c.metaLog.Append(ctx, &kvstore.CompilationMetadata{
		ConfigName:  conf.Name,
		OutputPath:  req.OutputPath,
		ListVersion: conf.Version,
		Timestamp:   res.CompiledAt.UnixMilli(),
		SourceCount: len(conf.Sources),
		RuleCount:   res.RuleCount,
		Duration:    duration.Milliseconds(),
	})
	if histErr != nil {
		errcoll.Collect(ctx, c.errColl, c.logger, "recording compilation history", histErr)
	}

	return nil
}

// terminate emits the terminal event matching err and returns the error to
// surface to the caller.
func (c *Compiler) terminate(ctx context.Context, sink events.Sink, err error) (res error) {
	if ctx.Err() != nil {
		// The terminal event must reach the sink even though the request
		// context is done.
		c.emit(context.WithoutCancel(ctx), sink, events.TypeCompileCancelled, nil)

		return ErrCancelled
	}

	c.emitError(ctx, sink, "compilation", err)

	return err
}

// emit sends one event into sink.
func (c *Compiler) emit(ctx context.Context, sink events.Sink, t events.Type, data any) {
	sink.Emit(ctx, &events.Event{
		Time: c.clock.Now(),
		Type: t,
		Data: data,
	})
}

// emitError sends the terminal error event.
func (c *Compiler) emitError(ctx context.Context, sink events.Sink, reason string, err error) {
	c.emit(ctx, sink, events.TypeCompileError, &events.CompileErrorData{
		Reason: reason,
		Error:  err.Error(),
	})
}

// emitComplete sends the terminal success event.
func (c *Compiler) emitComplete(ctx context.Context, sink events.Sink, res *Result) {
	c.emit(ctx, sink, events.TypeCompileComplete, &events.CompileCompleteData{
		Metrics:    res.Metrics,
		RuleCount:  res.RuleCount,
		DurationMs: res.Metrics["duration_ms"],
	})
}
