// Package cache holds short-lived in-process caches keyed by user.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/toko-rolepricing/internal/obs"
)

// DefaultTTL bounds how long an entry survives without explicit invalidation.
const DefaultTTL = 5 * time.Minute

// TTL is a size-bounded cache whose entries expire after a fixed time.
type TTL[V any] struct {
	name string
	lru  *expirable.LRU[string, V]
	// group collapses concurrent misses for the same key into one computation.
	group singleflight.Group

	// mu guards gen. Purge and Invalidate bump gen so computations that started
	// before them do not store their result.
	mu  sync.Mutex
	gen uint64
}

// NewTTL creates a cache holding at most size entries for ttl each.
// name labels the cache in metrics.
func NewTTL[V any](name string, size int, ttl time.Duration) *TTL[V] {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{name: name, lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	v, ok := c.lru.Get(key)
	obs.CountCacheLookup(c.name, ok)
	return v, ok
}

// GetOrCompute returns the cached value for key or stores the result of compute.
// Errors from compute are returned and nothing is cached. A result whose computation
// overlapped a Purge or Invalidate is returned to the caller but not cached.
func (c *TTL[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if c == nil {
		return compute()
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		start := c.generation()
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gen == start {
			c.lru.Add(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	v, _ := res.(V)
	return v, err
}

func (c *TTL[V]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Invalidate drops the entry for key.
func (c *TTL[V]) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.lru.Remove(key)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *TTL[V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.lru.Purge()
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *TTL[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
