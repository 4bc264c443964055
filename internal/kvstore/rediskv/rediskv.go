// Package rediskv contains the Redis implementation of [kvstore.Interface]
// for deployments that share the filter cache between instances.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/gomodule/redigo/redis"
)

// Redis-related constants.
const (
	// MinTTL is the minimum TTL that can be set, since that's the minimum
	// expiration allowed by Redis.
	MinTTL = 1 * time.Millisecond

	// scanCount is the COUNT hint used when scanning keys.
	scanCount = 100
)

// envelope is the stored form of an entry.  Expiration is delegated to
// Redis itself, but the timestamps are kept in the value.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Key       []string        `json:"key"`
	CreatedAt int64           `json:"created_at_ms"`
	UpdatedAt int64           `json:"updated_at_ms"`
	ExpiresAt int64           `json:"expires_at_ms,omitempty"`
}

// KV is the Redis [kvstore.Interface] implementation.
//
// Note that Redis, by convention, uses the colon ":" character to delimit
// key namespaces, so the flattened keys are prefixed with prefix plus a
// colon.
type KV struct {
	pool   redisutil.Pool
	clock  timeutil.Clock
	prefix string
}

// Config is the configuration structure for [KV].
type Config struct {
	// Pool maintains a pool of Redis connections.  It must not be nil.
	Pool redisutil.Pool

	// Clock is used to get the current time.  If nil,
	// [timeutil.SystemClock] is used.
	Clock timeutil.Clock

	// Prefix is the Redis key prefix.  It must not be empty.
	Prefix string
}

// New returns a new Redis-backed storage.  conf must not be nil.
func New(conf *Config) (kv *KV) {
	clock := conf.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &KV{
		pool:   conf.Pool,
		clock:  clock,
		prefix: conf.Prefix,
	}
}

// type check
var _ kvstore.Interface = (*KV)(nil)

// redisKey returns the full Redis key for a flattened storage key.
func (kv *KV) redisKey(flat string) (k string) {
	return kv.prefix + ":" + flat
}

// Set implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Set(
	ctx context.Context,
	key kvstore.Key,
	data []byte,
	ttl time.Duration,
) (err error) {
	defer func() { err = errors.Annotate(err, "rediskv: setting %q: %w", key.Join()) }()

	c, err := kv.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	now := kv.clock.Now()
	env := &envelope{
		Data:      json.RawMessage(data),
		Key:       key,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}

	if prev, _ := kv.getEnvelope(c, key.Join(), now); prev != nil {
		env.CreatedAt = prev.CreatedAt
	}

	if ttl > 0 {
		env.ExpiresAt = now.Add(ttl).UnixMilli()
	}

	envData, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	rk := kv.redisKey(key.Join())
	if ttl > 0 {
		_, err = c.Do(redisutil.CmdSET, rk, envData, redisutil.ParamPX, ttl.Milliseconds())
	} else {
		_, err = c.Do(redisutil.CmdSET, rk, envData)
	}
	if err != nil {
		return fmt.Errorf("set command: %w", err)
	}

	return nil
}

// Get implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Get(ctx context.Context, key kvstore.Key) (e *kvstore.Entry, err error) {
	defer func() { err = errors.Annotate(err, "rediskv: getting %q: %w", key.Join()) }()

	c, err := kv.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	env, err := kv.getEnvelope(c, key.Join(), kv.clock.Now())
	if err != nil {
		return nil, err
	} else if env == nil {
		return nil, nil
	}

	return exportEnvelope(env), nil
}

// getEnvelope fetches and decodes the envelope under flat.  env is nil if
// the key is missing or the entry is expired.
func (kv *KV) getEnvelope(
	c redis.Conn,
	flat string,
	now time.Time,
) (env *envelope, err error) {
	val, err := redis.Bytes(c.Do(redisutil.CmdGET, kv.redisKey(flat)))
	switch {
	case err == nil:
		// Go on.
	case errors.Is(err, redis.ErrNil):
		return nil, nil
	default:
		return nil, fmt.Errorf("get command: %w", err)
	}

	env = &envelope{}
	err = json.Unmarshal(val, env)
	if err != nil {
		return nil, fmt.Errorf("decoding entry: %w", err)
	}

	// Redis expires the key itself, but double-check in case the clocks
	// disagree.
	if env.ExpiresAt != 0 && now.UnixMilli() >= env.ExpiresAt {
		return nil, nil
	}

	return env, nil
}

// Delete implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer func() { err = errors.Annotate(err, "rediskv: deleting %q: %w", key.Join()) }()

	c, err := kv.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	_, err = c.Do("DEL", kv.redisKey(key.Join()))
	if err != nil {
		return fmt.Errorf("del command: %w", err)
	}

	return nil
}

// List implements the [kvstore.Interface] interface for *KV.
func (kv *KV) List(
	ctx context.Context,
	opts *kvstore.ListOptions,
) (entries []*kvstore.Entry, err error) {
	defer func() { err = errors.Annotate(err, "rediskv: listing: %w") }()

	c, err := kv.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	match := kv.prefix + ":"
	if p := opts.Prefix.Join(); p != "" {
		match += p + "/"
	}
	match += "*"

	flats, err := kv.scanKeys(c, match)
	if err != nil {
		return nil, err
	}

	now := kv.clock.Now()
	var all []*kvstore.Entry
	for _, flat := range flats {
		var env *envelope
		env, err = kv.getEnvelope(c, flat, now)
		if err != nil {
			return nil, err
		} else if env == nil {
			continue
		}

		all = append(all, exportEnvelope(env))
	}

	return kvstore.FilterSorted(all, opts), nil
}

// scanKeys iterates the keyspace with SCAN and returns the flattened
// storage keys, with the Redis key prefix stripped.
func (kv *KV) scanKeys(c redis.Conn, match string) (flats []string, err error) {
	stripLen := len(kv.prefix) + 1

	cursor := 0
	for {
		vals, scanErr := redis.Values(c.Do("SCAN", cursor, "MATCH", match, "COUNT", scanCount))
		if scanErr != nil {
			return nil, fmt.Errorf("scan command: %w", scanErr)
		}

		var keys []string
		_, scanErr = redis.Scan(vals, &cursor, &keys)
		if scanErr != nil {
			return nil, fmt.Errorf("decoding scan reply: %w", scanErr)
		}

		for _, k := range keys {
			if len(k) > stripLen {
				flats = append(flats, k[stripLen:])
			}
		}

		if cursor == 0 {
			break
		}
	}

	return flats, nil
}

// ClearExpired implements the [kvstore.Interface] interface for *KV.  Redis
// expires keys by itself, so n is always zero.
func (kv *KV) ClearExpired(_ context.Context) (n int, err error) {
	return 0, nil
}

// Stats implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Stats(ctx context.Context) (s *kvstore.Stats, err error) {
	defer func() { err = errors.Annotate(err, "rediskv: stats: %w") }()

	c, err := kv.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	flats, err := kv.scanKeys(c, kv.prefix+":*")
	if err != nil {
		return nil, err
	}

	return &kvstore.Stats{
		EntryCount: len(flats),
	}, nil
}

// exportEnvelope converts the stored form into a [kvstore.Entry].
func exportEnvelope(env *envelope) (e *kvstore.Entry) {
	e = &kvstore.Entry{
		CreatedAt: time.UnixMilli(env.CreatedAt),
		UpdatedAt: time.UnixMilli(env.UpdatedAt),
		Key:       kvstore.Key(env.Key),
		Data:      []byte(env.Data),
	}
	if env.ExpiresAt != 0 {
		e.ExpiresAt = time.UnixMilli(env.ExpiresAt)
	}

	return e
}
