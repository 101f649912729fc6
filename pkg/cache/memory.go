package cache

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process. Values are stored JSON encoded so
// it behaves like RedisCache; expired items are dropped lazily.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryItem
	now  func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]memoryItem), now: time.Now}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = append([]byte(nil), v...)
	default:
		var err error
		if data, err = json.Marshal(value); err != nil {
			return err
		}
	}
	item := memoryItem{data: data}
	if expiration > 0 {
		item.expireAt = mc.now().Add(expiration)
	}
	mc.mu.Lock()
	mc.data[key] = item
	mc.mu.Unlock()
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest any) error {
	mc.mu.RLock()
	item, ok := mc.data[key]
	mc.mu.RUnlock()
	if !ok || item.expired(mc.now()) {
		return ErrCacheMiss
	}
	if strPtr, ok := dest.(*string); ok {
		*strPtr = string(item.data)
		return nil
	}
	return json.Unmarshal(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

// Keys matches with path.Match, which agrees with Redis glob syntax for the
// '*' and '?' patterns used here.
func (mc *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	now := mc.now()
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	var out []string
	for k, item := range mc.data {
		if item.expired(now) {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (mc *MemoryCache) Close() error { return nil }

var _ Service = (*MemoryCache)(nil)
