// Package pipeline contains the transformation pipeline.  Transformations
// are applied in a fixed canonical order regardless of the order the caller
// lists them; the caller's list is a set of enabled passes.  Every pass is
// deterministic, order-preserving, and idempotent.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/hlccache"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Transform is the identifier of one transformation.
type Transform string

// Transform values.
const (
	TransformConvertToASCII     Transform = "ConvertToAscii"
	TransformRemoveComments     Transform = "RemoveComments"
	TransformCompress           Transform = "Compress"
	TransformRemoveModifiers    Transform = "RemoveModifiers"
	TransformValidate           Transform = "Validate"
	TransformValidateAllowIP    Transform = "ValidateAllowIp"
	TransformDeduplicate        Transform = "Deduplicate"
	TransformInvertAllow        Transform = "InvertAllow"
	TransformRemoveEmptyLines   Transform = "RemoveEmptyLines"
	TransformTrimLines          Transform = "TrimLines"
	TransformInsertFinalNewLine Transform = "InsertFinalNewLine"
)

// knownTransforms is the set of all transformation identifiers.
var knownTransforms = container.NewMapSet(
	TransformConvertToASCII,
	TransformRemoveComments,
	TransformCompress,
	TransformRemoveModifiers,
	TransformValidate,
	TransformValidateAllowIP,
	TransformDeduplicate,
	TransformInvertAllow,
	TransformRemoveEmptyLines,
	TransformTrimLines,
	TransformInsertFinalNewLine,
)

// IsKnown returns true if t is one of the defined transformation
// identifiers.
func IsKnown(t Transform) (ok bool) {
	return knownTransforms.Has(t)
}

// Scope values for transformation events.
const (
	ScopeSource = "source"
	ScopeList   = "list"
)

// idnCacheCount is the size of the memoization cache of punycode
// conversions.
const idnCacheCount = 4096

// Pipeline applies enabled transformations to rule lists.
type Pipeline struct {
	logger          *slog.Logger
	events          events.Sink
	idnCache        hlccache.Interface[string, string]
	removeModifiers []string
}

// Config is the configuration structure for a [Pipeline].
type Config struct {
	// Logger is used for logging the operation of the pipeline.  It must
	// not be nil.
	Logger *slog.Logger

	// Events receives transformation progress and diagnostics.  If nil,
	// events are discarded.
	Events events.Sink

	// RemoveModifiers is the deny-list of option names stripped by the
	// RemoveModifiers transformation.  If nil, [DefaultRemoveModifiers] is
	// used.
	RemoveModifiers []string
}

// DefaultRemoveModifiers is the default deny-list of the RemoveModifiers
// transformation: modifiers that have no meaning in host-level blocking.
var DefaultRemoveModifiers = []string{
	"third-party",
	"~third-party",
	"popup",
	"document",
	"all",
}

// New returns a new pipeline.  c must not be nil.
func New(c *Config) (p *Pipeline) {
	sink := c.Events
	if sink == nil {
		sink = events.Empty{}
	}

	rm := c.RemoveModifiers
	if rm == nil {
		rm = DefaultRemoveModifiers
	}

	return &Pipeline{
		logger: c.Logger,
		events: sink,
		idnCache: hlccache.NewLRU[string, string](&hlccache.LRUConfig{
			Count: idnCacheCount,
		}),
		removeModifiers: rm,
	}
}

// Apply runs the enabled transformations over lines in the canonical order.
// scope and source only annotate the emitted events.  Unknown identifiers in
// enabled are ignored; the configuration validator rejects them upfront.
func (p *Pipeline) Apply(
	ctx context.Context,
	enabled []Transform,
	scope string,
	source string,
	lines []string,
) (out []string) {
	set := container.NewMapSet(enabled...)

	out = lines
	for _, t := range p.passes(set) {
		// Cancellation checkpoint between passes.
		if ctx.Err() != nil {
			return out
		}

		out = p.run(ctx, t.name, scope, source, t.fn, out)
	}

	return out
}

// pass is one enabled transformation, resolved to its implementation.
type pass struct {
	fn   func(lines []string) (out []string)
	name Transform
}

// passes resolves the enabled set into passes in canonical order.  Validate
// and ValidateAllowIp share one slot; enabling both behaves as
// ValidateAllowIp.
func (p *Pipeline) passes(set *container.MapSet[Transform]) (ps []pass) {
	add := func(name Transform, fn func([]string) []string) {
		if set.Has(name) {
			ps = append(ps, pass{fn: fn, name: name})
		}
	}

	add(TransformConvertToASCII, p.convertToASCII)
	add(TransformRemoveComments, removeComments)
	add(TransformCompress, compress)
	add(TransformRemoveModifiers, p.removeModifiersPass)

	if set.Has(TransformValidateAllowIP) {
		ps = append(ps, pass{
			fn:   func(lines []string) []string { return validate(lines, true) },
			name: TransformValidateAllowIP,
		})
	} else if set.Has(TransformValidate) {
		ps = append(ps, pass{
			fn:   func(lines []string) []string { return validate(lines, false) },
			name: TransformValidate,
		})
	}

	add(TransformDeduplicate, deduplicate)
	add(TransformInvertAllow, invertAllow)
	add(TransformRemoveEmptyLines, removeEmptyLines)
	add(TransformTrimLines, trimLines)
	add(TransformInsertFinalNewLine, insertFinalNewLine)

	return ps
}

// run applies one pass with panic containment.  A panicking pass emits a
// diagnostic and leaves the list unchanged.
func (p *Pipeline) run(
	ctx context.Context,
	name Transform,
	scope string,
	source string,
	fn func(lines []string) (out []string),
	lines []string,
) (out []string) {
	p.events.Emit(ctx, &events.Event{
		Time: time.Now(),
		Type: events.TypeTransformStart,
		Data: &events.TransformData{
			Name:   string(name),
			Scope:  scope,
			Source: source,
		},
	})

	defer func() {
		v := recover()
		if v == nil {
			p.events.Emit(ctx, &events.Event{
				Time: time.Now(),
				Type: events.TypeTransformDone,
				Data: &events.TransformData{
					Name:   string(name),
					Scope:  scope,
					Source: source,
				},
			})

			return
		}

		msg := fmt.Sprintf("transformation %s failed: %v", name, v)
		p.logger.ErrorContext(ctx, "transformation", "name", name, slogutil.KeyError, msg)
		events.Diagnostic(ctx, p.events, source, msg)

		out = lines
	}()

	return fn(lines)
}
