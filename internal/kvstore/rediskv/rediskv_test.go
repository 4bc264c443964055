package rediskv_test

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/rediskv"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPortEnvVarName is the environment variable name the presence and value
// of which define whether to run depending tests and on which port Redis
// server is running.
const testPortEnvVarName = "TEST_REDIS_PORT"

// Redis pool configuration constants for common tests.
const (
	testIdleTimeout     = 30 * time.Second
	testMaxConnLifetime = 30 * time.Second
	testTimeout         = 5 * time.Second

	testMaxActive = 10
	testMaxIdle   = 3

	testDBIndex = 15
)

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// newIntegrationPool returns a *redisutil.DefaultPool for tests or skips the
// test if [testPortEnvVarName] is not set.  It selects a database at
// [testDBIndex] and flushes it after the test.
func newIntegrationPool(tb testing.TB) (p *redisutil.DefaultPool) {
	tb.Helper()

	portStr := os.Getenv(testPortEnvVarName)
	if portStr == "" {
		tb.Skipf("skipping; %s is not set", testPortEnvVarName)
	}

	port64, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(tb, err)

	d, err := redisutil.NewDefaultDialer(&redisutil.DefaultDialerConfig{
		Addr: &netutil.HostPort{
			Host: "localhost",
			Port: uint16(port64),
		},
		DBIndex: testDBIndex,
	})
	require.NoError(tb, err)

	testutil.CleanupAndRequireSuccess(tb, func() (cleanupErr error) {
		ctx := testutil.ContextWithTimeout(tb, testTimeout)
		c, cleanupErr := d.DialContext(ctx)
		require.NoError(tb, cleanupErr)
		testutil.CleanupAndRequireSuccess(tb, c.Close)

		okStr, cleanupErr := redis.String(c.Do(redisutil.CmdFLUSHDB, redisutil.ParamSYNC))
		require.NoError(tb, cleanupErr)

		assert.Equal(tb, redisutil.RespOK, okStr)

		return cleanupErr
	})

	p, err = redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:          testLogger,
		Dialer:          d,
		MaxConnLifetime: testMaxConnLifetime,
		IdleTimeout:     testIdleTimeout,
		MaxActive:       testMaxActive,
		MaxIdle:         testMaxIdle,
		Wait:            true,
	})
	require.NoError(tb, err)

	return p
}

// TestKV_setGet requires a Redis server running on 127.0.0.1 and must be run
// with [testPortEnvVarName] set to its port.
func TestKV_setGet(t *testing.T) {
	kv := rediskv.New(&rediskv.Config{
		Pool:   newIntegrationPool(t),
		Prefix: "hlc_test",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	key := kvstore.Key{"cache", "filters", "https://example.org/f.txt"}

	e, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	err = kv.Set(ctx, key, []byte(`{"n":1}`), 1*time.Hour)
	require.NoError(t, err)

	e, err = kv.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, key, e.Key)
	assert.JSONEq(t, `{"n":1}`, string(e.Data))

	err = kv.Delete(ctx, key)
	require.NoError(t, err)

	e, err = kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)
}

// TestKV_list requires a Redis server running on 127.0.0.1 and must be run
// with [testPortEnvVarName] set to its port.
func TestKV_list(t *testing.T) {
	kv := rediskv.New(&rediskv.Config{
		Pool:   newIntegrationPool(t),
		Prefix: "hlc_test",
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	keys := []kvstore.Key{
		{"metadata", "compilations", "list", "100"},
		{"metadata", "compilations", "list", "200"},
		{"other", "entry"},
	}
	for _, k := range keys {
		require.NoError(t, kv.Set(ctx, k, []byte(`0`), 1*time.Hour))
	}

	entries, err := kv.List(ctx, &kvstore.ListOptions{
		Prefix: kvstore.Key{"metadata", "compilations", "list"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, keys[0], entries[0].Key)
	assert.Equal(t, keys[1], entries[1].Key)
}
