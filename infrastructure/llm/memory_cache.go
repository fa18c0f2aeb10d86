package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/hallucheck/internal/ports"
)

var errEmptyCacheKey = errors.New("empty cache key")

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is a process-local ports.CacheStore. It lives for one run so
// repeated identical prompts hit the provider once.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

var _ ports.CacheStore = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the value stored under key. Expired entries are reported as
// misses.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool, error) {
	if key == "" {
		return nil, false, ports.NewCacheError(key, "get", errEmptyCacheKey)
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. A zero expiration keeps the entry for the
// lifetime of the cache.
func (c *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	if key == "" {
		return ports.NewCacheError(key, "set", errEmptyCacheKey)
	}

	entry := cacheEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = c.now().Add(expiration)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
