package cmd

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// compilerConfig contains the compilation orchestrator configuration.
type compilerConfig struct {
	// RemoveModifiers is the deny-list of the RemoveModifiers transformation.
	// If empty, the built-in default list is used.
	RemoveModifiers []string `yaml:"remove_modifiers"`

	// SourceCacheTTL is the lifetime of downloaded sources in the filter
	// cache.
	SourceCacheTTL timeutil.Duration `yaml:"source_cache_ttl"`

	// ResultCacheTTL is the lifetime of cached compilation results.
	ResultCacheTTL timeutil.Duration `yaml:"result_cache_ttl"`

	// WorkerCap bounds parallel per-source work within one compilation.
	WorkerCap int `yaml:"worker_cap"`

	// IncludeMaxDepth bounds "!#include" directive nesting.
	IncludeMaxDepth int `yaml:"include_max_depth"`

	// NotRecursionMaxDepth bounds "!" nesting in "!#if" conditions.
	NotRecursionMaxDepth int `yaml:"not_recursion_max_depth"`
}

// type check
var _ validate.Interface = (*compilerConfig)(nil)

// Validate implements the [validate.Interface] interface for *compilerConfig.
// A nil config is valid and means the defaults.
func (c *compilerConfig) Validate() (err error) {
	if c == nil {
		return nil
	}

	return errors.Join(
		validate.NotNegative("worker_cap", c.WorkerCap),
		validate.NotNegative("include_max_depth", c.IncludeMaxDepth),
		validate.NotNegative("not_recursion_max_depth", c.NotRecursionMaxDepth),
		validate.NotNegative("source_cache_ttl", c.SourceCacheTTL),
		validate.NotNegative("result_cache_ttl", c.ResultCacheTTL),
	)
}

// toInternal converts c to the compiler configuration.  c must be valid.  All
// arguments must not be nil.
func (c *compilerConfig) toInternal(
	store kvstore.Interface,
	errColl errcoll.Interface,
	baseLogger *slog.Logger,
	mtrc compiler.Metrics,
) (conf *compiler.Config) {
	conf = &compiler.Config{
		Logger:  baseLogger.With(slogutil.KeyPrefix, "compiler"),
		ErrColl: errColl,
		Store:   store,
		Metrics: mtrc,
	}

	if c == nil {
		return conf
	}

	conf.RemoveModifiers = c.RemoveModifiers
	conf.WorkerCap = c.WorkerCap
	conf.IncludeMaxDepth = c.IncludeMaxDepth
	conf.NotMaxDepth = c.NotRecursionMaxDepth
	conf.SourceCacheTTL = time.Duration(c.SourceCacheTTL)
	conf.ResultCacheTTL = time.Duration(c.ResultCacheTTL)

	return conf
}
