package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
)

// Cache holds the latest tick per asset, fed by a stream, and serves them
// as a freshness-bounded PriceFeed.
type Cache struct {
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	latest map[string]models.PriceTick
}

func NewCache(maxAge time.Duration) *Cache {
	return &Cache{
		maxAge: maxAge,
		now:    time.Now,
		latest: make(map[string]models.PriceTick),
	}
}

// Update stores t unless it is older than what is already cached.
func (c *Cache) Update(t models.PriceTick) bool {
	if t.Price <= 0 || t.Timestamp.IsZero() {
		return false
	}
	asset := strings.ToUpper(t.Asset)
	t.Asset = asset

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.latest[asset]; ok && t.Timestamp.Before(cur.Timestamp) {
		return false
	}
	c.latest[asset] = t
	return true
}

// CurrentPrice returns the latest price, ErrDataUnavailable when none has been
// seen and ErrStalePrice when it is older than the freshness bound.
func (c *Cache) CurrentPrice(_ context.Context, asset string) (models.PricePoint, error) {
	c.mu.RLock()
	t, ok := c.latest[strings.ToUpper(asset)]
	c.mu.RUnlock()
	if !ok {
		return models.PricePoint{}, fmt.Errorf("%w: no price for %s", models.ErrDataUnavailable, asset)
	}
	if age := c.now().Sub(t.Timestamp); c.maxAge > 0 && age > c.maxAge {
		return t.Point(), fmt.Errorf("%w: %s price is %s old", models.ErrStalePrice, asset, age.Truncate(time.Millisecond))
	}
	return t.Point(), nil
}

// Last returns the cached tick regardless of age.
func (c *Cache) Last(asset string) (models.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.latest[strings.ToUpper(asset)]
	return t, ok
}

var _ repository.PriceFeed = (*Cache)(nil)
