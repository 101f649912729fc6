package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("book", 2, 1))
	assert.True(t, l.Allow("book", 2, 1))
	assert.False(t, l.Allow("book", 2, 1))
	assert.True(t, l.Allow("orders", 2, 1), "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("book", 2, 1))
	assert.False(t, l.Allow("book", 2, 1))
}

func TestWaitHonoursContext(t *testing.T) {
	l := New()
	require.True(t, l.Allow("k", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "k", 1, 0.001), context.DeadlineExceeded)
}

func TestWaitReturnsOnRefill(t *testing.T) {
	l := New()
	require.True(t, l.Allow("k", 1, 100))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 100))
	assert.Less(t, time.Since(start), time.Second)
}
