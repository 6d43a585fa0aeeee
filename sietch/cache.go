package sietch

import (
	"context"
	"sync"
	"time"
)

// Cache stores values under string keys with an expiry. Get returns
// ErrItemNotFound on a miss.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (*V, error)
	Set(ctx context.Context, key string, value *V) error
	Delete(ctx context.Context, key string) error
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// InMemoryCache is a process-local Cache. A zero ttl keeps entries forever.
type InMemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

var _ Cache[struct{}] = (*InMemoryCache[struct{}])(nil)

// NewInMemoryCache creates an empty cache
func NewInMemoryCache[V any](ttl time.Duration) *InMemoryCache[V] {
	return &InMemoryCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *InMemoryCache[V]) Get(_ context.Context, key string) (*V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || (!entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt)) {
		return nil, ErrItemNotFound
	}
	v := entry.value
	return &v, nil
}

func (c *InMemoryCache[V]) Set(_ context.Context, key string, value *V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry[V]{value: *value}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *InMemoryCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
