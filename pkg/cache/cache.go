package cache

import (
	"context"
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item[V any] struct {
	Value     V
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the cache item has expired
func (item *Item[V]) IsExpired() bool {
	return time.Now().After(item.ExpiresAt)
}

// Cache is a thread-safe in-memory cache with TTL support
type Cache[V any] struct {
	items           map[string]*Item[V]
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewCache creates a new cache with default TTL
func NewCache[V any](defaultTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:           make(map[string]*Item[V]),
		defaultTTL:      defaultTTL,
		cleanupInterval: defaultTTL / 2,
		stopCleanup:     make(chan struct{}),
	}

	// Start background cleanup goroutine
	go c.cleanup()

	return c
}

// Get retrieves a value from cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	item, exists := c.items[key]
	if !exists {
		return zero, false
	}

	if item.IsExpired() {
		// Item expired, but we'll let cleanup remove it
		return zero, false
	}

	return item.Value, true
}

// Set stores a value in cache with default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &Item[V]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
}

// Delete removes a key from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items from cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Item[V])
}

// Invalidate removes expired items (can be called manually)
func (c *Cache[V]) Invalidate(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		// Remove all expired items
		for key, item := range c.items {
			if item.IsExpired() {
				delete(c.items, key)
			}
		}
		return
	}

	// Simple prefix matching for pattern invalidation
	for key := range c.items {
		if len(key) >= len(pattern) && key[:len(pattern)] == pattern {
			delete(c.items, key)
		}
	}
}

// cleanup periodically removes expired items
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Invalidate("")
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Size returns the number of items in cache
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
type Stats struct {
	Size      int
	Expired   int
	TotalKeys int
}

// GetStats returns cache statistics
func (c *Cache[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalKeys: len(c.items),
	}

	for _, item := range c.items {
		if item.IsExpired() {
			stats.Expired++
		}
	}

	stats.Size = stats.TotalKeys - stats.Expired
	return stats
}

// WithFallback is a cache wrapper that falls back to a function on miss
type WithFallback[V any] struct {
	cache *Cache[V]

	mu sync.Mutex // serializes fallback calls per instance
}

// NewWithFallback creates a cache with fallback function support
func NewWithFallback[V any](defaultTTL time.Duration) *WithFallback[V] {
	return &WithFallback[V]{
		cache: NewCache[V](defaultTTL),
	}
}

// GetOrSet retrieves from cache or calls fallback function and caches result
func (c *WithFallback[V]) GetOrSet(ctx context.Context, key string, fallback func(context.Context) (V, error), ttl time.Duration) (V, error) {
	// Try to get from cache
	if value, found := c.cache.Get(key); found {
		return value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have populated the key while we waited
	if value, found := c.cache.Get(key); found {
		return value, nil
	}

	// Cache miss, call fallback
	value, err := fallback(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	// Cache the result
	if ttl > 0 {
		c.cache.SetWithTTL(key, value, ttl)
	} else {
		c.cache.Set(key, value)
	}

	return value, nil
}

// Invalidate invalidates cache entries matching pattern
func (c *WithFallback[V]) Invalidate(pattern string) {
	c.cache.Invalidate(pattern)
}

// Stop stops the cache cleanup
func (c *WithFallback[V]) Stop() {
	c.cache.Stop()
}
