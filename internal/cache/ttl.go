// Package cache provides the in-memory TTL cache shared by concurrent
// resolutions.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

// valid reports whether the entry may still be served at now.
func (e entry[V]) valid(now time.Time) bool {
	return now.Sub(e.insertedAt) < e.ttl
}

// TTL is a concurrency-safe map whose entries expire a fixed duration after
// insertion. Expiry is checked on read; Purge and Sweep reclaim memory held
// by entries nobody reads again.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   clockz.Clock
}

// New creates a cache with the given default TTL. A nil clock uses the real
// clock.
func New[K comparable, V any](ttl time.Duration, clock clockz.Clock) *TTL[K, V] {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the value stored under key if it has not expired. An expired
// entry is removed.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.valid(now) {
		return e.value, true
	}

	var zero V
	if !ok {
		return zero, false
	}

	c.mu.Lock()
	// Another writer may have refreshed the entry meanwhile.
	if cur, still := c.entries[key]; still && !cur.valid(now) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return zero, false
}

// Set stores value under key with the cache's default TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL. A non-positive TTL
// stores nothing.
func (c *TTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, insertedAt: c.clock.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeleteFunc removes every key for which match returns true and reports how
// many were removed.
func (c *TTL[K, V]) DeleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear removes every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes expired entries and reports how many were removed.
func (c *TTL[K, V]) Purge() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !e.valid(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Sweep purges expired entries every interval until ctx is done.
func (c *TTL[K, V]) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(interval):
			c.Purge()
		}
	}
}
