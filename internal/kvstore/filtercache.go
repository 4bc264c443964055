package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FilterCacheEntry is a cached downloaded filter list.
type FilterCacheEntry struct {
	// CreatedAt is the time of the first successful download.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time of the last refresh.
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is the expiration time.  It is zero if the entry does not
	// expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Source is the source URL or path.
	Source string `json:"source"`

	// Hash is the SHA-256 hex hash of the newline-joined content.
	Hash string `json:"hash"`

	// ETag is the HTTP ETag of the last response, if any.
	ETag string `json:"etag,omitempty"`

	// Content is the downloaded and preprocessed list, line by line.
	Content []string `json:"content"`
}

// FilterCache is the typed convenience namespace for cached filter lists,
// stored under "cache/filters/<source>".
type FilterCache struct {
	store Interface
}

// NewFilterCache returns a new filter cache over store.  store must not be
// nil.
func NewFilterCache(store Interface) (c *FilterCache) {
	return &FilterCache{
		store: store,
	}
}

// filterCacheKey returns the storage key for source.
func filterCacheKey(source string) (key Key) {
	return Key{"cache", "filters", source}
}

// Set stores a cache entry for its source with the given TTL.
func (c *FilterCache) Set(
	ctx context.Context,
	ent *FilterCacheEntry,
	ttl time.Duration,
) (err error) {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("filter cache: encoding %q: %w", ent.Source, err)
	}

	return c.store.Set(ctx, filterCacheKey(ent.Source), data, ttl)
}

// Get returns the cache entry for source, or nil if there is none or it has
// expired.
func (c *FilterCache) Get(ctx context.Context, source string) (ent *FilterCacheEntry, err error) {
	e, err := c.store.Get(ctx, filterCacheKey(source))
	if err != nil || e == nil {
		return nil, err
	}

	ent = &FilterCacheEntry{}
	err = json.Unmarshal(e.Data, ent)
	if err != nil {
		return nil, fmt.Errorf("filter cache: decoding %q: %w", source, err)
	}

	return ent, nil
}

// Invalidate removes the cache entry for source.
func (c *FilterCache) Invalidate(ctx context.Context, source string) (err error) {
	return c.store.Delete(ctx, filterCacheKey(source))
}
