package compiler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AdguardTeam/HostlistCompiler/internal/cachedl"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
)

// patternSpec carries the include/exclude configuration of one scope, either
// a single source or the whole list.
type patternSpec struct {
	inclusions        []string
	exclusions        []string
	inclusionsSources []string
	exclusionsSources []string
}

// sourcePatterns returns the pattern spec of one source.
func sourcePatterns(src *SourceConfig) (spec patternSpec) {
	return patternSpec{
		inclusions:        src.Inclusions,
		exclusions:        src.Exclusions,
		inclusionsSources: src.InclusionsSources,
		exclusionsSources: src.ExclusionsSources,
	}
}

// listPatterns returns the list-wide pattern spec.
func listPatterns(conf *Configuration) (spec patternSpec) {
	return patternSpec{
		inclusions:        conf.Inclusions,
		exclusions:        conf.Exclusions,
		inclusionsSources: conf.InclusionsSources,
		exclusionsSources: conf.ExclusionsSources,
	}
}

// patternLoader loads include/exclude pattern files once per compilation.
// It is safe for concurrent use by the fan-out workers.
type patternLoader struct {
	dl    *cachedl.Downloader
	mu    *sync.Mutex
	cache map[string][]*Pattern
}

// newPatternLoader returns a new loader over dl.
func newPatternLoader(dl *cachedl.Downloader) (l *patternLoader) {
	return &patternLoader{
		dl:    dl,
		mu:    &sync.Mutex{},
		cache: map[string][]*Pattern{},
	}
}

// load resolves the inclusion and exclusion patterns of spec, fetching
// pattern sources as needed.  Fetch and parse failures degrade to
// diagnostics and an empty contribution.
func (l *patternLoader) load(
	ctx context.Context,
	sink events.Sink,
	owner string,
	spec patternSpec,
) (incl, excl []*Pattern) {
	// Inline patterns have been checked by the configuration validator.
	incl = MustParsePatterns(spec.inclusions)
	excl = MustParsePatterns(spec.exclusions)

	for _, src := range spec.inclusionsSources {
		incl = append(incl, l.fromSource(ctx, sink, owner, src)...)
	}

	for _, src := range spec.exclusionsSources {
		excl = append(excl, l.fromSource(ctx, sink, owner, src)...)
	}

	return incl, excl
}

// fromSource returns the patterns of one pattern file, from the per-compile
// cache when it has been loaded before.
func (l *patternLoader) fromSource(
	ctx context.Context,
	sink events.Sink,
	owner string,
	src string,
) (ps []*Pattern) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[src]; ok {
		return cached
	}

	ps = l.fetch(ctx, sink, owner, src)
	l.cache[src] = ps

	return ps
}

// fetch downloads and parses one pattern file.
func (l *patternLoader) fetch(
	ctx context.Context,
	sink events.Sink,
	owner string,
	src string,
) (ps []*Pattern) {
	res, err := l.dl.Download(ctx, src)
	if err != nil {
		events.Diagnostic(ctx, sink, owner, fmt.Sprintf("pattern source %q: %s", src, err))

		return nil
	}

	for _, line := range res.Rules {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '!' || line[0] == '#' {
			continue
		}

		p, parseErr := ParsePattern(line)
		if parseErr != nil {
			events.Diagnostic(ctx, sink, owner, fmt.Sprintf("pattern source %q: %s", src, parseErr))

			continue
		}

		ps = append(ps, p)
	}

	return ps
}
