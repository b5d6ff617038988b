package analytics

import (
	"sync"
	"time"
)

// Key identifies a cached result
type Key struct {
	HabitID string
	UserID  string
}

type cacheItem[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL map safe for concurrent use. Expired items are dropped
// lazily on lookup.
type Cache[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[Key]cacheItem[V]
}

func NewCache[V any](ttl time.Duration, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{ttl: ttl, now: now, items: make(map[Key]cacheItem[V])}
}

func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(item.expires) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *Cache[V]) Set(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem[V]{value: value, expires: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]cacheItem[V])
}

// Len counts items, including expired ones not yet evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
