// Package events contains the typed progress events emitted during a
// compilation and the sinks that consume them.  Events for one compilation
// are delivered in emission order; sinks decide how to transport them.
package events

import (
	"context"
	"time"
)

// Type is the kind of a compilation event.
type Type string

// Type values.  These are the exact tags used on the wire.
const (
	TypeCompileStarted   Type = "compile:started"
	TypeSourceStart      Type = "source:start"
	TypeSourceProgress   Type = "source:progress"
	TypeSourceDone       Type = "source:done"
	TypeSourceError      Type = "source:error"
	TypeTransformStart   Type = "transformation:start"
	TypeTransformDone    Type = "transformation:done"
	TypeDiagnostic       Type = "diagnostic"
	TypeCacheHit         Type = "cache:hit"
	TypeCacheMiss        Type = "cache:miss"
	TypeCacheStore       Type = "cache:store"
	TypeNetworkRetry     Type = "network:retry"
	TypeMetric           Type = "metric"
	TypeCompileComplete  Type = "compile:complete"
	TypeCompileError     Type = "compile:error"
	TypeCompileCancelled Type = "compile:cancelled"
)

// IsTerminal returns true if t ends an event stream.  No events follow a
// terminal one.
func (t Type) IsTerminal() (ok bool) {
	switch t {
	case TypeCompileComplete, TypeCompileError, TypeCompileCancelled:
		return true
	default:
		return false
	}
}

// Event is a single compilation event.
type Event struct {
	// Time is the emission time.
	Time time.Time `json:"time"`

	// Data is the payload.  It is one of the *Data structures in this
	// package, depending on Type.
	Data any `json:"data,omitempty"`

	// Type is the event kind.
	Type Type `json:"type"`
}

// CompileStartedData is the payload of [TypeCompileStarted].
type CompileStartedData struct {
	ConfigName  string `json:"config_name"`
	Fingerprint string `json:"fingerprint"`
	SourceCount int    `json:"source_count"`
}

// SourceData is the payload of [TypeSourceStart] and [TypeSourceProgress].
type SourceData struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
}

// SourceDoneData is the payload of [TypeSourceDone].
type SourceDoneData struct {
	Name       string `json:"name,omitempty"`
	Source     string `json:"source"`
	RuleCount  int    `json:"rule_count"`
	DurationMs int64  `json:"duration_ms"`
	FromCache  bool   `json:"from_cache"`
}

// SourceErrorData is the payload of [TypeSourceError].
type SourceErrorData struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
	Error  string `json:"error"`
}

// TransformData is the payload of [TypeTransformStart] and
// [TypeTransformDone].
type TransformData struct {
	// Name is the transformation identifier.
	Name string `json:"name"`

	// Scope is either "source" or "list".
	Scope string `json:"scope"`

	// Source is the source the transformation applies to, empty for the
	// list-wide pass.
	Source string `json:"source,omitempty"`
}

// DiagnosticData is the payload of [TypeDiagnostic].
type DiagnosticData struct {
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// CacheData is the payload of [TypeCacheHit], [TypeCacheMiss], and
// [TypeCacheStore].
type CacheData struct {
	Source string `json:"source"`
}

// NetworkRetryData is the payload of [TypeNetworkRetry].
type NetworkRetryData struct {
	Source  string `json:"source"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

// MetricData is the payload of [TypeMetric].
type MetricData struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CompileCompleteData is the payload of [TypeCompileComplete].
type CompileCompleteData struct {
	Metrics    map[string]int64 `json:"metrics,omitempty"`
	RuleCount  int              `json:"rule_count"`
	DurationMs int64            `json:"duration_ms"`
}

// CompileErrorData is the payload of [TypeCompileError].
type CompileErrorData struct {
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Sink is a consumer of compilation events.
//
// Emit consumes one event.  Implementations must be safe for concurrent use.
// Emit may block to apply backpressure; it must return promptly once ctx is
// done.
type Sink interface {
	Emit(ctx context.Context, ev *Event)
}

// Empty is a [Sink] that discards all events.
type Empty struct{}

// type check
var _ Sink = Empty{}

// Emit implements the [Sink] interface for Empty.
func (Empty) Emit(_ context.Context, _ *Event) {}

// Diagnostic is a convenience shortcut emitting a [TypeDiagnostic] event to
// sink.  sink must not be nil.
func Diagnostic(ctx context.Context, sink Sink, source, message string) {
	sink.Emit(ctx, &Event{
		Time: time.Now(),
		Type: TypeDiagnostic,
		Data: &DiagnosticData{
			Source:  source,
			Message: message,
		},
	})
}
