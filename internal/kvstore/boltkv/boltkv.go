// Package boltkv contains the bbolt-backed implementation of
// [kvstore.Interface] for single-node deployments that need the storage to
// survive restarts.
package boltkv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	bolt "go.etcd.io/bbolt"
)

// bucketName is the name of the single bucket holding all entries.
var bucketName = []byte("kv")

// envelope is the on-disk form of an entry.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Key       []string        `json:"key"`
	CreatedAt int64           `json:"created_at_ms"`
	UpdatedAt int64           `json:"updated_at_ms"`
	ExpiresAt int64           `json:"expires_at_ms,omitempty"`
}

// KV is the bbolt [kvstore.Interface] implementation.
type KV struct {
	db    *bolt.DB
	clock timeutil.Clock
}

// Config is the configuration structure for [KV].
type Config struct {
	// Clock is used to get the current time.  If nil,
	// [timeutil.SystemClock] is used.
	Clock timeutil.Clock

	// Path is the path to the database file.  It must not be empty.
	Path string
}

// New opens or creates the database file and returns a new storage.  conf
// must not be nil.
func New(conf *Config) (kv *KV, err error) {
	db, err := bolt.Open(conf.Path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("boltkv: opening %q: %w", conf.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) (txErr error) {
		_, txErr = tx.CreateBucketIfNotExists(bucketName)

		return txErr
	})
	if err != nil {
		return nil, errors.WithDeferred(
			fmt.Errorf("boltkv: creating bucket: %w", err),
			db.Close(),
		)
	}

	clock := conf.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &KV{
		db:    db,
		clock: clock,
	}, nil
}

// Close closes the underlying database.
func (kv *KV) Close() (err error) {
	return kv.db.Close()
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
	flat := []byte(key.Join())

	return kv.db.Update(func(tx *bolt.Tx) (txErr error) {
		b := tx.Bucket(bucketName)

		env := &envelope{
			Data:      json.RawMessage(data),
			Key:       key,
			CreatedAt: now.UnixMilli(),
			UpdatedAt: now.UnixMilli(),
		}
		if ttl > 0 {
			env.ExpiresAt = now.Add(ttl).UnixMilli()
		}

		if prevData := b.Get(flat); prevData != nil {
			prev := &envelope{}
			if jsonErr := json.Unmarshal(prevData, prev); jsonErr == nil &&
				!isExpired(prev, now) {
				env.CreatedAt = prev.CreatedAt
			}
		}

		envData, txErr := json.Marshal(env)
		if txErr != nil {
			return fmt.Errorf("encoding entry: %w", txErr)
		}

		return b.Put(flat, envData)
	})
}

// Get implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Get(_ context.Context, key kvstore.Key) (e *kvstore.Entry, err error) {
	now := kv.clock.Now()
	flat := []byte(key.Join())

	err = kv.db.Update(func(tx *bolt.Tx) (txErr error) {
		b := tx.Bucket(bucketName)

		envData := b.Get(flat)
		if envData == nil {
			return nil
		}

		env := &envelope{}
		txErr = json.Unmarshal(envData, env)
		if txErr != nil {
			return fmt.Errorf("decoding entry: %w", txErr)
		}

		if isExpired(env, now) {
			return b.Delete(flat)
		}

		e = exportEnvelope(env)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltkv: getting %q: %w", key.Join(), err)
	}

	return e, nil
}

// Delete implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Delete(_ context.Context, key kvstore.Key) (err error) {
	return kv.db.Update(func(tx *bolt.Tx) (txErr error) {
		return tx.Bucket(bucketName).Delete([]byte(key.Join()))
	})
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

	err = kv.db.View(func(tx *bolt.Tx) (txErr error) {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			flat := string(k)
			if prefix != "" && !bytes.HasPrefix(k, []byte(prefix)) {
				continue
			}

			if opts.Start != "" && flat < opts.Start {
				continue
			}

			if opts.End != "" && flat >= opts.End {
				continue
			}

			env := &envelope{}
			txErr = json.Unmarshal(v, env)
			if txErr != nil {
				return fmt.Errorf("decoding entry %q: %w", flat, txErr)
			}

			if isExpired(env, now) {
				continue
			}

			entries = append(entries, exportEnvelope(env))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltkv: listing: %w", err)
	}

	if opts.Reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	return entries, nil
}

// ClearExpired implements the [kvstore.Interface] interface for *KV.
func (kv *KV) ClearExpired(_ context.Context) (n int, err error) {
	now := kv.clock.Now()

	err = kv.db.Update(func(tx *bolt.Tx) (txErr error) {
		b := tx.Bucket(bucketName)

		var expired [][]byte
		txErr = b.ForEach(func(k, v []byte) (feErr error) {
			env := &envelope{}
			if json.Unmarshal(v, env) == nil && isExpired(env, now) {
				expired = append(expired, bytes.Clone(k))
			}

			return nil
		})
		if txErr != nil {
			return txErr
		}

		for _, k := range expired {
			txErr = b.Delete(k)
			if txErr != nil {
				return txErr
			}

			n++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltkv: clearing expired: %w", err)
	}

	return n, nil
}

// Stats implements the [kvstore.Interface] interface for *KV.
func (kv *KV) Stats(_ context.Context) (s *kvstore.Stats, err error) {
	now := kv.clock.Now()
	s = &kvstore.Stats{}

	err = kv.db.View(func(tx *bolt.Tx) (txErr error) {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) (feErr error) {
			env := &envelope{}
			if json.Unmarshal(v, env) == nil && isExpired(env, now) {
				s.ExpiredCount++

				return nil
			}

			s.EntryCount++
			s.SizeEstimate += len(v)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltkv: stats: %w", err)
	}

	return s, nil
}

// isExpired returns true if env is expired at now.
func isExpired(env *envelope, now time.Time) (ok bool) {
	return env.ExpiresAt != 0 && now.UnixMilli() >= env.ExpiresAt
}

// exportEnvelope converts the on-disk form into a [kvstore.Entry].
func exportEnvelope(env *envelope) (e *kvstore.Entry) {
	e = &kvstore.Entry{
		CreatedAt: time.UnixMilli(env.CreatedAt),
		UpdatedAt: time.UnixMilli(env.UpdatedAt),
		Key:       kvstore.Key(env.Key),
		Data:      bytes.Clone(env.Data),
	}
	if env.ExpiresAt != 0 {
		e.ExpiresAt = time.UnixMilli(env.ExpiresAt)
	}

	return e
}
