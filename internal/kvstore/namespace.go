package kvstore

import (
	"context"
	"time"
)

// KeyNamespaceConfig is the configuration structure for [KeyNamespace].
type KeyNamespaceConfig struct {
	// Store is the storage to be wrapped.  It must not be nil.
	Store Interface

	// Prefix is prepended to every key.
	Prefix Key
}

// KeyNamespace is a wrapper around [Interface] that confines all operations
// to the subtree under a key prefix.
type KeyNamespace struct {
	store  Interface
	prefix Key
}

// NewKeyNamespace returns a properly initialized *KeyNamespace.  conf must
// not be nil.
func NewKeyNamespace(conf *KeyNamespaceConfig) (n *KeyNamespace) {
	return &KeyNamespace{
		store:  conf.Store,
		prefix: conf.Prefix,
	}
}

// type check
var _ Interface = (*KeyNamespace)(nil)

// prefixed returns key prepended with the namespace prefix.
func (n *KeyNamespace) prefixed(key Key) (p Key) {
	p = make(Key, 0, len(n.prefix)+len(key))
	p = append(p, n.prefix...)

	return append(p, key...)
}

// Set implements the [Interface] interface for *KeyNamespace.
func (n *KeyNamespace) Set(
	ctx context.Context,
	key Key,
	data []byte,
	ttl time.Duration,
) (err error) {
	return n.store.Set(ctx, n.prefixed(key), data, ttl)
}

// Get implements the [Interface] interface for *KeyNamespace.
func (n *KeyNamespace) Get(ctx context.Context, key Key) (e *Entry, err error) {
	e, err = n.store.Get(ctx, n.prefixed(key))
	if e != nil {
		e.Key = e.Key[len(n.prefix):]
	}

	return e, err
}

// Delete implements the [Interface] interface for *KeyNamespace.
func (n *KeyNamespace) Delete(ctx context.Context, key Key) (err error) {
	return n.store.Delete(ctx, n.prefixed(key))
}

// List implements the [Interface] interface for *KeyNamespace.
func (n *KeyNamespace) List(
	ctx context.Context,
	opts *ListOptions,
) (entries []*Entry, err error) {
	nsOpts := *opts
	nsOpts.Prefix = n.prefixed(opts.Prefix)

	entries, err = n.store.List(ctx, &nsOpts)
	for _, e := range entries {
		e.Key = e.Key[len(n.prefix):]
	}

	return entries, err
}

// ClearExpired implements the [Interface] interface for *KeyNamespace.  Note
// that it clears the whole underlying storage, not only the namespace.
func (n *KeyNamespace) ClearExpired(ctx context.Context) (num int, err error) {
	return n.store.ClearExpired(ctx)
}

// Stats implements the [Interface] interface for *KeyNamespace.  The
// counters are those of the whole underlying storage.
func (n *KeyNamespace) Stats(ctx context.Context) (s *Stats, err error) {
	return n.store.Stats(ctx)
}
