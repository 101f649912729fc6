package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
)

func TestCacheFreshness(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(15 * time.Second)
	c.now = func() time.Time { return now }

	_, err := c.CurrentPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	require.True(t, c.Update(models.PriceTick{Asset: "btc", Price: 100000, Timestamp: now.Add(-5 * time.Second)}))
	p, err := c.CurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Price)

	now = now.Add(20 * time.Second)
	_, err = c.CurrentPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrStalePrice)
}

func TestCacheRejectsOutOfOrderAndInvalid(t *testing.T) {
	now := time.Now()
	c := NewCache(time.Minute)

	require.True(t, c.Update(models.PriceTick{Asset: "ETH", Price: 3000, Timestamp: now}))
	assert.False(t, c.Update(models.PriceTick{Asset: "ETH", Price: 2990, Timestamp: now.Add(-time.Second)}))
	assert.False(t, c.Update(models.PriceTick{Asset: "ETH", Price: 0, Timestamp: now.Add(time.Second)}))

	last, ok := c.Last("eth")
	require.True(t, ok)
	assert.Equal(t, 3000.0, last.Price)
}
