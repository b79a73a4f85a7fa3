// Package cache provides the in-process TTL caches shared by the engine
// components: computed event statistics and symbol-pair correlations.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// TTLCache is a map with a fixed time-to-live per entry. Mutations take the
// write lock; lookups take the read lock and drop expired entries lazily.
type TTLCache[K comparable, V any] struct {
	mu  sync.RWMutex
	m   map[K]entry[V]
	ttl time.Duration
	now func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTTLCache creates a cache whose entries expire ttl after being set.
func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return &TTLCache[K, V]{
		m:   make(map[K]entry[V]),
		ttl: ttl,
		now: o.now,
	}
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if !c.now().Before(e.exp) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed it
		if cur, still := c.m[key]; still && !c.now().Before(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.v, true
}

// Set stores value under key, overwriting any previous entry.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.m[key] = entry[V]{v: value, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes keys.
func (c *TTLCache[K, V]) Delete(keys ...K) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
}

// DeleteFunc removes every key for which match returns true and reports how
// many entries were dropped.
func (c *TTLCache[K, V]) DeleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.m {
		if match(k) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

// Purge drops every entry.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	c.m = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// TTL returns the configured lifetime.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns lookup counters.
func (c *TTLCache[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

// Close releases the cache contents. The cache must not be used afterwards.
func (c *TTLCache[K, V]) Close() {
	c.Purge()
}

// Stats contains cache lookup counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// StatsKey identifies a cached statistics computation.
type StatsKey struct {
	EventName string
	Currency  string
	Weighted  bool
}

// PairKey identifies an unordered pair of symbols.
type PairKey struct {
	A, B string
}

// NewPairKey returns the same key regardless of argument order.
func NewPairKey(a, b string) PairKey {
	pair := []string{strings.ToUpper(a), strings.ToUpper(b)}
	sort.Strings(pair)
	return PairKey{A: pair[0], B: pair[1]}
}

func (p PairKey) String() string {
	return p.A + "/" + p.B
}
