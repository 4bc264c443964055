// Package changedet records lightweight per-source snapshots and detects
// content changes between downloads.  The current snapshot of a source lives
// at "snapshots/sources/<source>"; previous snapshots are archived under
// "snapshots/history/<source>/<timestamp>".
package changedet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/timeutil"
)

// SampleSize is the number of leading rules kept in a snapshot sample.
const SampleSize = 10

// Snapshot is the recorded state of one source at one point in time.
type Snapshot struct {
	// Source is the source URL or path.
	Source string `json:"source"`

	// Hash is the lowercase hex SHA-256 of the newline-joined content.
	Hash string `json:"hash"`

	// ETag is the HTTP entity tag of the download, if any.
	ETag string `json:"etag,omitempty"`

	// RuleSample is the first [SampleSize] lines of the content.
	RuleSample []string `json:"rule_sample"`

	// Timestamp is the snapshot time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp_ms"`

	// RuleCount is the number of lines in the content.
	RuleCount int `json:"rule_count"`
}

// Change is the result of comparing fresh content against the previous
// snapshot of its source.
type Change struct {
	// Previous is the snapshot the content was compared against.  It is nil
	// for a source seen for the first time.
	Previous *Snapshot

	// Current is the snapshot of the fresh content.
	Current *Snapshot

	// Changed is true when the content hash differs from the previous
	// snapshot or there is no previous snapshot.
	Changed bool
}

// Detector records snapshots and detects changes.
type Detector struct {
	store kvstore.Interface
	clock timeutil.Clock
}

// Config is the configuration structure for a [Detector].
type Config struct {
	// Store is the storage backend.  It must not be nil.
	Store kvstore.Interface

	// Clock is used for snapshot timestamps.  If nil, the system clock is
	// used.
	Clock timeutil.Clock
}

// New returns a new change detector.  c must not be nil.
func New(c *Config) (d *Detector) {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &Detector{
		store: c.Store,
		clock: clock,
	}
}

// Hash returns the lowercase hex SHA-256 of the newline-joined content.
func Hash(content []string) (h string) {
	sum := sha256.Sum256([]byte(strings.Join(content, "\n")))

	return hex.EncodeToString(sum[:])
}

// Check compares content against the previous snapshot of source, records
// the fresh snapshot as current, and archives the previous one when the
// content changed.
func (d *Detector) Check(
	ctx context.Context,
	source string,
	content []string,
	etag string,
) (c *Change, err error) {
	cur := d.snapshot(source, content, etag)

	prev, err := d.Current(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("change detector: %w", err)
	}

	c = &Change{
		Previous: prev,
		Current:  cur,
		Changed:  prev == nil || prev.Hash != cur.Hash,
	}

	if prev != nil && c.Changed {
		err = d.archive(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("change detector: %w", err)
		}
	}

	err = d.put(ctx, currentKey(source), cur)
	if err != nil {
		return nil, fmt.Errorf("change detector: %w", err)
	}

	return c, nil
}

// Current returns the current snapshot of source or nil if there is none.
func (d *Detector) Current(ctx context.Context, source string) (s *Snapshot, err error) {
	e, err := d.store.Get(ctx, currentKey(source))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot for %q: %w", source, err)
	} else if e == nil {
		return nil, nil
	}

	s = &Snapshot{}
	err = json.Unmarshal(e.Data, s)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot for %q: %w", source, err)
	}

	return s, nil
}

// History returns up to limit archived snapshots of source, newest first.
func (d *Detector) History(
	ctx context.Context,
	source string,
	limit int,
) (snaps []*Snapshot, err error) {
	entries, err := d.store.List(ctx, &kvstore.ListOptions{
		Prefix:  kvstore.Key{"snapshots", "history", source},
		Limit:   limit,
		Reverse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshot history for %q: %w", source, err)
	}

	snaps = make([]*Snapshot, 0, len(entries))
	for _, e := range entries {
		s := &Snapshot{}
		err = json.Unmarshal(e.Data, s)
		if err != nil {
			return nil, fmt.Errorf("decoding snapshot %q: %w", e.Key.Join(), err)
		}

		snaps = append(snaps, s)
	}

	return snaps, nil
}

// snapshot builds a snapshot of content at the current time.
func (d *Detector) snapshot(source string, content []string, etag string) (s *Snapshot) {
	sample := content
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	return &Snapshot{
		Source:     source,
		Hash:       Hash(content),
		ETag:       etag,
		RuleSample: append([]string{}, sample...),
		Timestamp:  d.clock.Now().UnixMilli(),
		RuleCount:  len(content),
	}
}

// archive moves a superseded snapshot into the history namespace.
func (d *Detector) archive(ctx context.Context, s *Snapshot) (err error) {
	key := kvstore.Key{
		"snapshots",
		"history",
		s.Source,
		// Zero-padded so that lexicographic key order is chronological.
		fmt.Sprintf("%020d", s.Timestamp),
	}

	return d.put(ctx, key, s)
}

// put JSON-encodes s at key.
func (d *Detector) put(ctx context.Context, key kvstore.Key, s *Snapshot) (err error) {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %q: %w", s.Source, err)
	}

	return d.store.Set(ctx, key, data, 0)
}

// currentKey returns the storage key of the current snapshot of source.
func currentKey(source string) (key kvstore.Key) {
	return kvstore.Key{"snapshots", "sources", source}
}
