// Package cache provides a small read-through cache for handlers
// fronting slow or flaky stores.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// CacheWithFallback is a read-through cache: a miss runs the loader
// and keeps its result for the TTL. Expired entries are retained as a
// fallback, so a loader failure degrades to a stale read instead of an
// error as long as the key has been loaded once.
type CacheWithFallback struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	defaultTTL time.Duration
}

func NewCacheWithFallback(defaultTTL time.Duration) *CacheWithFallback {
	return &CacheWithFallback{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
	}
}

// GetOrSet returns the cached value for key, running the loader on a
// miss or an expired entry. A non-positive ttl uses the default.
func (c *CacheWithFallback) GetOrSet(ctx context.Context, key string, loader func(context.Context) (interface{}, error), ttl time.Duration) (interface{}, error) {
	c.mu.RLock()
	e := c.entries[key]
	c.mu.RUnlock()
	if e != nil && !e.expired() {
		return e.value, nil
	}

	value, err := loader(ctx)
	if err != nil {
		if e != nil {
			// Stale beats failing.
			return e.value, nil
		}
		return nil, err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return value, nil
}

// Invalidate drops the key so the next read hits the loader.
func (c *CacheWithFallback) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
