package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
)

func TestMemoryCacheHitAndMiss(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))
	value, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(10, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Items)
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))

	// touch a so b becomes the eviction candidate
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMemoryCacheOverwrite(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("old")))
	require.NoError(t, c.Set(ctx, "k", []byte("new")))

	value, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), value)
	assert.Equal(t, 1, c.Stats().Items)
}

func TestMemoryCacheClose(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	require.NoError(t, c.Close())

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, "k", []byte("v")))
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(config.CacheConfig{Backend: "memory", Capacity: 5, TTLSeconds: 60}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(config.CacheConfig{Backend: "memcached"}, nil)
	assert.Error(t, err)
}

func TestKeyIsDeterministicAndSensitive(t *testing.T) {
	type shape struct {
		Query   string            `json:"query"`
		Filters map[string]string `json:"filters"`
		Page    int               `json:"page"`
	}

	a := Key(shape{Query: "users", Filters: map[string]string{"method": "GET", "tag": "admin"}, Page: 1})
	b := Key(shape{Query: "users", Filters: map[string]string{"tag": "admin", "method": "GET"}, Page: 1})
	assert.Equal(t, a, b, "map key order must not change the fingerprint")
	assert.Len(t, a, 64)

	c := Key(shape{Query: "users", Filters: map[string]string{"method": "POST", "tag": "admin"}, Page: 1})
	assert.NotEqual(t, a, c)

	d := Key(shape{Query: "users", Filters: map[string]string{"method": "GET", "tag": "admin"}, Page: 2})
	assert.NotEqual(t, a, d)
}
