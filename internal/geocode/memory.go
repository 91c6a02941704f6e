package geocode

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

// MemoryCache is the in-process Cache used when Redis is not configured.
// Entries carry their own TTL; when full, the least recently used entry goes.
type MemoryCache struct {
	items *lru.Cache[string, memoryItem]
	now   func() time.Time
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	// lru.New only fails for a non-positive size.
	items, _ := lru.New[string, memoryItem](maxSize)
	return &MemoryCache{items: items, now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.now().After(item.expireAt) {
		if cur, ok := m.items.Peek(key); ok && cur.expireAt.Equal(item.expireAt) {
			m.items.Remove(key)
		}
		return nil, false, nil
	}
	return item.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.items.Add(key, memoryItem{value: cp, expireAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *MemoryCache) Len() int { return m.items.Len() }
