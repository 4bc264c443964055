package compiler

import (
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/pipeline"
)

// Source types.
const (
	SourceTypeAdblock = "adblock"
	SourceTypeHosts   = "hosts"
)

// SourceConfig describes one filter-list source.
type SourceConfig struct {
	// Source is the source URL or path.
	Source string `json:"source"`

	// Name is the human-readable source name for the merged list's source
	// separator block.
	Name string `json:"name,omitempty"`

	// Type is either [SourceTypeAdblock] or [SourceTypeHosts].  Empty means
	// adblock.
	Type string `json:"type,omitempty"`

	// Transformations are the per-source passes.
	Transformations []pipeline.Transform `json:"transformations,omitempty"`

	// Exclusions are patterns of rules to drop.
	Exclusions []string `json:"exclusions,omitempty"`

	// ExclusionsSources are files or URLs with one exclusion pattern per
	// line.
	ExclusionsSources []string `json:"exclusions_sources,omitempty"`

	// Inclusions are patterns of rules to keep.  When non-empty, rules not
	// matching any of them are dropped.
	Inclusions []string `json:"inclusions,omitempty"`

	// InclusionsSources are files or URLs with one inclusion pattern per
	// line.
	InclusionsSources []string `json:"inclusions_sources,omitempty"`
}

// Configuration is a declarative compilation request document.
type Configuration struct {
	// Name is the list title.
	Name string `json:"name"`

	// Description, Homepage, License, and Version fill the optional header
	// lines of the compiled list.
	Description string `json:"description,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	License     string `json:"license,omitempty"`
	Version     string `json:"version,omitempty"`

	// Sources are the filter-list sources, in output order.
	Sources []*SourceConfig `json:"sources"`

	// Transformations are the list-wide passes applied after merging.
	Transformations []pipeline.Transform `json:"transformations,omitempty"`

	// Exclusions, ExclusionsSources, Inclusions, and InclusionsSources are
	// the list-wide counterparts of the per-source fields.
	Exclusions        []string `json:"exclusions,omitempty"`
	ExclusionsSources []string `json:"exclusions_sources,omitempty"`
	Inclusions        []string `json:"inclusions,omitempty"`
	InclusionsSources []string `json:"inclusions_sources,omitempty"`
}

// Request is one compilation request.
type Request struct {
	// Configuration is the document to compile.  It must not be nil.
	Configuration *Configuration `json:"configuration"`

	// PreFetched maps source keys to raw content, bypassing retrieval.
	PreFetched map[string]string `json:"pre_fetched_content,omitempty"`

	// Platform is the platform identifier for preprocessor conditions.
	Platform string `json:"platform,omitempty"`

	// OutputPath, when set, makes the compiler write the list to this path
	// atomically.
	OutputPath string `json:"output_path,omitempty"`

	// Benchmark enables timing metrics in the result.
	Benchmark bool `json:"benchmark,omitempty"`
}

// Result is the outcome of one compilation.
type Result struct {
	// CompiledAt is the completion time.
	CompiledAt time.Time `json:"compiled_at"`

	// Metrics are counters and timings of the compilation.
	Metrics map[string]int64 `json:"metrics,omitempty"`

	// Error is the failure message.  Empty on success.
	Error string `json:"error,omitempty"`

	// PreviousVersion is the Version header value of the previous
	// compilation of the same configuration name, if known.
	PreviousVersion string `json:"previous_version,omitempty"`

	// Rules is the complete compiled list, including checksum and header.
	Rules []string `json:"rules,omitempty"`

	// RuleCount is the number of lines in Rules.
	RuleCount int `json:"rule_count"`

	// Success is true when compilation finished.
	Success bool `json:"success"`

	// Cached is true when the result came from the result cache.
	Cached bool `json:"cached"`

	// Deduplicated is true when this caller attached to another in-flight
	// compilation of the same fingerprint.
	Deduplicated bool `json:"deduplicated"`
}

// clone returns a shallow copy of r so that concurrent consumers can flip
// their own Cached and Deduplicated flags.
func (r *Result) clone() (c *Result) {
	c = &Result{}
	*c = *r

	return c
}
