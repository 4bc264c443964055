// Package kvstore defines the hierarchical key-value storage used by the
// compiler for filter-list caches, snapshots, source health, and compilation
// metadata, as well as helpers and wrappers common to all backends.
//
// Values are JSON documents.  Keys are hierarchies of elements; backends are
// free to flatten them, but must preserve the hierarchy for prefix listing.
package kvstore

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Key is a hierarchical storage key.
type Key []string

// Join returns the flattened form of k.  Elements are escaped so that
// elements containing the separator cannot collide with the hierarchy.
func (k Key) Join() (s string) {
	escaped := make([]string, len(k))
	for i, elem := range k {
		escaped[i] = url.PathEscape(elem)
	}

	return strings.Join(escaped, "/")
}

// Entry is a stored value together with its metadata.
type Entry struct {
	// CreatedAt is the time the key was first set.
	CreatedAt time.Time

	// UpdatedAt is the time the key was last set.
	UpdatedAt time.Time

	// ExpiresAt is the expiration time.  It is zero if the entry does not
	// expire.
	ExpiresAt time.Time

	// Key is the entry's key.
	Key Key

	// Data is the stored JSON document.
	Data []byte
}

// IsExpired returns true if the entry is expired at now.
func (e *Entry) IsExpired(now time.Time) (ok bool) {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// ListOptions narrows a List call.  Start and End bound the flattened keys
// lexicographically, Start inclusively and End exclusively.
type ListOptions struct {
	// Prefix, if non-empty, limits the listing to keys under it.
	Prefix Key

	// Start is the inclusive lower bound on the flattened key.
	Start string

	// End is the exclusive upper bound on the flattened key.
	End string

	// Limit is the maximum number of entries to return.  Zero means no
	// limit.
	Limit int

	// Reverse reverses the listing order.
	Reverse bool
}

// Stats is a snapshot of storage counters.
type Stats struct {
	// EntryCount is the number of live entries.
	EntryCount int

	// ExpiredCount is the number of expired entries that have not been
	// cleaned up yet.
	ExpiredCount int

	// SizeEstimate is the approximate total size of the stored values in
	// bytes.
	SizeEstimate int
}

// Interface is the hierarchical key-value storage interface.  All methods
// must be safe for concurrent use; writes to the same key must be serialized
// by the implementation.
type Interface interface {
	// Set stores data under key.  A zero ttl means the entry does not
	// expire.  Replacing an entry preserves its creation time.
	Set(ctx context.Context, key Key, data []byte, ttl time.Duration) (err error)

	// Get returns the entry stored under key, or nil if there is none.
	// Expired entries are deleted eagerly and reported as missing.
	Get(ctx context.Context, key Key) (e *Entry, err error)

	// Delete removes the entry stored under key.  Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key Key) (err error)

	// List returns entries in flattened-key order, honoring opts.  Expired
	// entries are excluded.  opts must not be nil.
	List(ctx context.Context, opts *ListOptions) (entries []*Entry, err error)

	// ClearExpired removes expired entries and returns their number.
	ClearExpired(ctx context.Context) (n int, err error)

	// Stats returns storage counters.
	Stats(ctx context.Context) (s *Stats, err error)
}

// Empty is an [Interface] implementation that stores nothing.
type Empty struct{}

// type check
var _ Interface = Empty{}

// Set implements the [Interface] interface for Empty.
func (Empty) Set(_ context.Context, _ Key, _ []byte, _ time.Duration) (err error) {
	return nil
}

// Get implements the [Interface] interface for Empty.  e is always nil.
func (Empty) Get(_ context.Context, _ Key) (e *Entry, err error) {
	return nil, nil
}

// Delete implements the [Interface] interface for Empty.
func (Empty) Delete(_ context.Context, _ Key) (err error) {
	return nil
}

// List implements the [Interface] interface for Empty.
func (Empty) List(_ context.Context, _ *ListOptions) (entries []*Entry, err error) {
	return nil, nil
}

// ClearExpired implements the [Interface] interface for Empty.
func (Empty) ClearExpired(_ context.Context) (n int, err error) {
	return 0, nil
}

// Stats implements the [Interface] interface for Empty.
func (Empty) Stats(_ context.Context) (s *Stats, err error) {
	return &Stats{}, nil
}
