package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Price float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "volhist:BTC", []point{{Price: 1}, {Price: 2}}, 0))
	var got []point
	require.NoError(t, mc.Get(ctx, "volhist:BTC", &got))
	assert.Equal(t, []point{{Price: 1}, {Price: 2}}, got)

	require.NoError(t, mc.Set(ctx, "raw", "hello", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "hello", s)
}

func TestMemoryCacheMissAndDelete(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "nope", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", "v", 0))
	require.NoError(t, mc.Delete(ctx, "k", "missing"))
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))
	now = now.Add(2 * time.Minute)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	keys, err := mc.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryCacheKeysPattern(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()
	for _, k := range []string{"volhist:ETH", "volhist:BTC", "other:BTC"} {
		require.NoError(t, mc.Set(ctx, k, 1, 0))
	}

	keys, err := mc.Keys(ctx, BuildPattern("volhist"))
	require.NoError(t, err)
	assert.Equal(t, []string{"volhist:BTC", "volhist:ETH"}, keys)
}
