package hlccache_test

import (
	"testing"

	"github.com/AdguardTeam/HostlistCompiler/internal/hlccache"
	"github.com/stretchr/testify/assert"
)

// Common keys for tests.
const (
	key            = "key"
	nonExistingKey = "no such key"

	val = 42
)

func TestLRU(t *testing.T) {
	cache := hlccache.NewLRU[string, int](&hlccache.LRUConfig{
		Count: 10,
	})

	cache.Set(key, val)

	assert.Equal(t, 1, cache.Len())

	v, ok := cache.Get(key)
	assert.Equal(t, val, v)
	assert.True(t, ok)

	v, ok = cache.Get(nonExistingKey)
	assert.Equal(t, 0, v)
	assert.False(t, ok)

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
}

func TestEmpty(t *testing.T) {
	cache := hlccache.Empty[string, int]{}

	cache.Set(key, val)

	assert.Equal(t, 0, cache.Len())

	v, ok := cache.Get(key)
	assert.Equal(t, 0, v)
	assert.False(t, ok)
}
