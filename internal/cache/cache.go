package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Policy bounds one cache instance. All three bounds apply simultaneously:
// entry count and total estimated bytes are enforced at Put by LRU eviction,
// TTL is enforced lazily at Get.
type Policy struct {
	MaxEntries int
	MaxBytes   int64
	TTL        time.Duration
}

// Stats reports cumulative cache effectiveness counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// SnapshotEntry is one cache entry exported for durable warm start.
type SnapshotEntry[V any] struct {
	Key      string    `json:"key"`
	Value    V         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
	size     int64
}

// Cache is a TTL+capacity-bounded LRU cache with a single-flight compute
// guarantee. Instances never share state; each is constructed with its own
// policy and injected where needed.
type Cache[V any] struct {
	mu      sync.Mutex
	policy  Policy
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	bytes   int64
	stats   Stats
	flight  singleflight.Group
	nowFunc func() time.Time
	sizeOf  func(V) int64
}

// Option customizes cache behavior.
type Option[V any] func(*Cache[V])

// WithSizeFunc sets the per-value byte estimator. Without one every entry
// counts as a single byte and only the entry-count bound bites.
func WithSizeFunc[V any](sizeOf func(V) int64) Option[V] {
	return func(c *Cache[V]) {
		c.sizeOf = sizeOf
	}
}

// WithClock overrides the time source for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.nowFunc = now
	}
}

// New constructs a cache with the given policy.
func New[V any](policy Policy, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		policy:  policy,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
		sizeOf:  func(V) int64 { return 1 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Expired entries are removed and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V
	element, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	item := element.Value.(*entry[V])
	if c.expired(item) {
		c.removeLocked(element)
		c.stats.Misses++
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.Hits++
	return item.value, true
}

// Put stores a value, evicting least-recently-used entries until the new
// entry fits both capacity bounds. A value larger than the byte bound can
// never fit and is rejected without disturbing resident entries.
func (c *Cache[V]) Put(key string, value V) {
	size := c.sizeOf(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.oversized(size) {
		return
	}

	if element, ok := c.items[key]; ok {
		c.removeLocked(element)
	}

	for c.order.Len() > 0 && c.overCapacityLocked(size) {
		c.evictOldestLocked()
	}

	item := &entry[V]{key: key, value: value, storedAt: c.nowFunc(), size: size}
	c.items[key] = c.order.PushFront(item)
	c.bytes += size
}

// GetOrCompute returns the cached value for key, or runs fn to produce it.
// Concurrent callers for the same missing key share a single in-flight
// computation; fn runs at most once per key at any time. A caller whose
// context is cancelled stops waiting; the shared computation itself keeps
// running for the remaining waiters.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	resultCh := c.flight.DoChan(key, func() (any, error) {
		// Re-check under the flight: a racing caller may have populated it.
		if value, ok := c.peek(key); ok {
			return value, nil
		}
		value, err := fn(ctx)
		if err != nil {
			var zero V
			return zero, err
		}
		c.Put(key, value)
		return value, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			var zero V
			return zero, result.Err
		}
		return result.Val.(V), nil
	}
}

// Stats returns a snapshot of the cumulative counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Snapshot exports all unexpired entries for durable warm start.
func (c *Cache[V]) Snapshot() []SnapshotEntry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]SnapshotEntry[V], 0, c.order.Len())
	for element := c.order.Back(); element != nil; element = element.Prev() {
		item := element.Value.(*entry[V])
		if c.expired(item) {
			continue
		}
		snapshot = append(snapshot, SnapshotEntry[V]{
			Key:      item.key,
			Value:    item.value,
			StoredAt: item.storedAt,
		})
	}
	return snapshot
}

// Restore seeds the cache from a snapshot, preserving original insertion
// times so TTL expiry carries across restarts. Expired entries are skipped.
func (c *Cache[V]) Restore(entries []SnapshotEntry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snap := range entries {
		item := &entry[V]{
			key:      snap.Key,
			value:    snap.Value,
			storedAt: snap.StoredAt,
			size:     c.sizeOf(snap.Value),
		}
		if c.expired(item) || c.oversized(item.size) {
			continue
		}
		if element, ok := c.items[snap.Key]; ok {
			c.removeLocked(element)
		}
		for c.order.Len() > 0 && c.overCapacityLocked(item.size) {
			c.evictOldestLocked()
		}
		c.items[snap.Key] = c.order.PushFront(item)
		c.bytes += item.size
	}
}

// peek is the re-check used under a single-flight computation. A hit counts
// as usual; an absence does not count a second miss for the same lookup.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		return zero, false
	}
	item := element.Value.(*entry[V])
	if c.expired(item) {
		c.removeLocked(element)
		return zero, false
	}
	c.order.MoveToFront(element)
	c.stats.Hits++
	return item.value, true
}

func (c *Cache[V]) oversized(size int64) bool {
	return c.policy.MaxBytes > 0 && size > c.policy.MaxBytes
}

func (c *Cache[V]) expired(item *entry[V]) bool {
	if c.policy.TTL <= 0 {
		return false
	}
	return c.nowFunc().Sub(item.storedAt) > c.policy.TTL
}

func (c *Cache[V]) overCapacityLocked(incomingSize int64) bool {
	if c.policy.MaxEntries > 0 && c.order.Len()+1 > c.policy.MaxEntries {
		return true
	}
	if c.policy.MaxBytes > 0 && c.bytes+incomingSize > c.policy.MaxBytes {
		return true
	}
	return false
}

func (c *Cache[V]) evictOldestLocked() {
	element := c.order.Back()
	if element == nil {
		return
	}
	c.removeLocked(element)
	c.stats.Evictions++
}

func (c *Cache[V]) removeLocked(element *list.Element) {
	item := element.Value.(*entry[V])
	c.order.Remove(element)
	delete(c.items, item.key)
	c.bytes -= item.size
}
