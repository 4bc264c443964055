// Package memkv contains the in-memory implementation of
// [kvstore.Interface].  It is the default backend and the one used in tests.
package memkv

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/timeutil"
)

// entry is a single stored entry.
type entry struct {
	createdAt time.Time
	updatedAt time.Time
	expiresAt time.Time
	key       kvstore.Key
	data      []byte
}

// isExpired returns true if the entry is expired at now.
func (e *entry) isExpired(now time.Time) (ok bool) {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// KV is the in-memory [kvstore.Interface] implementation.
type KV struct {
	mu      *sync.Mutex
	entries map[string]*entry
	clock   timeutil.Clock
}

// Config is the configuration structure for [KV].
type Config struct {
	// Clock is used to get the current time.  If nil,
	// [timeutil.SystemClock] is used.
	Clock timeutil.Clock
}

// New returns a new in-memory key-value storage.  conf may be nil.
func New(conf *Config) (kv *KV) {
	var clock timeutil.Clock = timeutil.SystemClock{}
	if conf != nil && conf.Clock != nil {
		clock = conf.Clock
	}

	return &KV{
		mu:      &sync.Mutex{},
		entries: map[string]*entry{},
		clock:   clock,
	}
}

// type check
var _ kvstore.Interface = (*KV)(nil)

// Set implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Set(
	_ context.Context,
	key kvstore.Key,
	data []byte,
	ttl time.Duration,
) (err error) {
	now := kv.clock.Now()

	kv.mu.Lock()
	defer kv.mu.Unlock()

	flat := key.Join()

	createdAt := now
	if prev, ok := kv.entries[flat]; ok && !prev.isExpired(now) {
		createdAt = prev.createdAt
	}

	e := &entry{
		createdAt: createdAt,
		updatedAt: now,
		key:       slices.Clone(key),
		data:      slices.Clone(data),
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	kv.entries[flat] = e

	return nil
}

// Get implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Get(_ context.Context, key kvstore.Key) (res *kvstore.Entry, err error) {
	now := kv.clock.Now()

	kv.mu.Lock()
	defer kv.mu.Unlock()

	flat := key.Join()
	e, ok := kv.entries[flat]
	if !ok {
		return nil, nil
	}

	if e.isExpired(now) {
		delete(kv.entries, flat)

		return nil, nil
	}

	return exportEntry(e), nil
}

// Delete implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Delete(_ context.Context, key kvstore.Key) (err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.entries, key.Join())

	return nil
}

// List implements the [kvstore.Interface] interface for *KV.
func (kv *KV) List(
	_ context.Context,
	opts *kvstore.ListOptions,
) (entries []*kvstore.Entry, err error) {
	now := kv.clock.Now()
	prefix := opts.Prefix.Join()
	if prefix != "" {
		prefix += "/"
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	flats := make([]string, 0, len(kv.entries))
	for flat, e := range kv.entries {
		if e.isExpired(now) {
			continue
		}

		if prefix != "" && !strings.HasPrefix(flat, prefix) {
			continue
		}

		if opts.Start != "" && flat < opts.Start {
			continue
		}

		if opts.End != "" && flat >= opts.End {
			continue
		}

		flats = append(flats, flat)
	}

	slices.Sort(flats)
	if opts.Reverse {
		slices.Reverse(flats)
	}

	if opts.Limit > 0 && len(flats) > opts.Limit {
		flats = flats[:opts.Limit]
	}

	entries = make([]*kvstore.Entry, 0, len(flats))
	for _, flat := range flats {
		entries = append(entries, exportEntry(kv.entries[flat]))
	}

	return entries, nil
}

// ClearExpired implements the [kvstore.Interface] interface for *KV.
func (kv *KV) ClearExpired(_ context.Context) (n int, err error) {
	now := kv.clock.Now()

	kv.mu.Lock()
	defer kv.mu.Unlock()

	for flat, e := range kv.entries {
		if e.isExpired(now) {
			delete(kv.entries, flat)
			n++
		}
	}

	return n, nil
}

// Stats implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Stats(_ context.Context) (s *kvstore.Stats, err error) {
	now := kv.clock.Now()

	kv.mu.Lock()
	defer kv.mu.Unlock()

	s = &kvstore.Stats{}
	for _, e := range kv.entries {
		if e.isExpired(now) {
			s.ExpiredCount++

			continue
		}

		s.EntryCount++
		s.SizeEstimate += len(e.data)
	}

	return s, nil
}

// exportEntry converts an internal entry into the exported form.  The
// returned entry does not alias the internal one.
func exportEntry(e *entry) (res *kvstore.Entry) {
	return &kvstore.Entry{
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
		ExpiresAt: e.expiresAt,
		Key:       slices.Clone(e.key),
		Data:      slices.Clone(e.data),
	}
}
