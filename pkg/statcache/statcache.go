// Package statcache provides a small in-memory TTL cache for the
// aggregate counts behind the admin dashboard. The queries are cheap
// individually but the dashboard polls them, so results are held for a
// short TTL and dropped eagerly whenever a mutation changes the world.
package statcache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiration time and insertion order.
type entry struct {
	value      any
	expiresAt  time.Time
	insertedAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL and max-size
// eviction. When the cache reaches maxSize, the oldest entry (by
// insertion time) is evicted to make room. Expired entries are lazily
// evicted on Get.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*entry
	maxSize int
	ttl     time.Duration
}

// New creates a cache with the given maximum size and TTL.
// maxSize must be >= 1; ttl must be > 0.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		items:   make(map[string]*entry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached value by key. Returns (nil, false) if the key
// is missing or expired. Expired entries are lazily deleted.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value. If the cache is at capacity, the oldest entry
// (by insertion time) is evicted before inserting.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = &entry{
		value:      value,
		expiresAt:  now.Add(c.ttl),
		insertedAt: now,
	}
}

// Invalidate removes a specific key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll drops every entry. Mutation paths call this so the
// dashboard never shows counts older than the last write.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.maxSize)
}

// Size returns the number of entries currently held, including
// expired ones not yet lazily cleaned.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.insertedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
