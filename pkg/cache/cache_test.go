package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ResultCache {
	t.Helper()
	c, err := New("", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)

	key := c.Key("acme", "slow checkout", 0.5, 0.5)
	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, []byte(`[{"entity_id":"e1"}]`)))

	payload, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"entity_id":"e1"}]`, string(payload))
}

func TestCacheKeyNormalizesQuery(t *testing.T) {
	c := newTestCache(t)

	// Trivially different spellings share an entry.
	assert.Equal(t,
		c.Key("acme", "Slow Checkout", 0.5, 0.5),
		c.Key("acme", "slow   checkout!", 0.5, 0.5))

	// Different weights and namespaces never collide.
	assert.NotEqual(t,
		c.Key("acme", "slow checkout", 0.5, 0.5),
		c.Key("acme", "slow checkout", 1.0, 0.0))
	assert.NotEqual(t,
		c.Key("acme", "slow checkout", 0.5, 0.5),
		c.Key("globex", "slow checkout", 0.5, 0.5))
}

func TestCacheInvalidateChangesKeys(t *testing.T) {
	c := newTestCache(t)

	before := c.Key("acme", "slow checkout", 0.5, 0.5)
	require.NoError(t, c.Set(before, []byte("payload")))

	require.NoError(t, c.Invalidate("acme"))

	after := c.Key("acme", "slow checkout", 0.5, 0.5)
	assert.NotEqual(t, before, after)
	_, ok, err := c.Get(after)
	require.NoError(t, err)
	assert.False(t, ok, "the old entry is unreachable under the new epoch")

	// Other namespaces keep their epoch.
	assert.Equal(t,
		c.Key("globex", "slow checkout", 0.5, 0.5),
		c.Key("globex", "slow checkout", 0.5, 0.5))
}

func TestCacheTTLExpiry(t *testing.T) {
	c, err := New("", 50*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	key := c.Key("acme", "slow checkout", 0.5, 0.5)
	require.NoError(t, c.Set(key, []byte("payload")))

	time.Sleep(120 * time.Millisecond)

	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}
