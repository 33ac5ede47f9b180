// Package refcache provides a keyed TTL cache whose values are
// constructed lazily and borrowed through ref-counted handles.
//
// Concurrent misses for the same key run the constructor exactly once;
// every waiter observes the same value or the same error. Released
// handles distinguish a normal release from an invalidation, so a
// still-good value survives success while a single failure forces the
// next acquirer to rebuild it.
package refcache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache maps string keys to values of type V with a fixed TTL.
//
// The zero value is not usable; create instances with New.
type Cache[V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry[V]
	group   singleflight.Group

	// now is swapped out by tests to control expiry.
	now func() time.Time
}

// entry holds one cached value together with its borrow state.
type entry[V any] struct {
	value   V
	refs    int
	dead    bool
	expires time.Time
}

// Handle is a borrowed reference to a cached value.
//
// A handle pins its entry: the entry is never reconstructed out from
// under an outstanding holder, even past expiry or invalidation.
// Exactly one of Release or Invalidate must be called, exactly once.
type Handle[V any] struct {
	cache *Cache[V]
	key   string
	e     *entry[V]
}

// New creates a cache whose entries live for ttl after construction.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
}

// Acquire returns a handle for key, constructing the value via ctor if
// no live entry exists. Under concurrent misses for the same key, ctor
// runs once and all acquirers share its outcome. ctor may block on I/O;
// acquires for other keys proceed independently.
//
// A ctor error is returned to every waiting acquirer and leaves no
// cached entry behind.
func (c *Cache[V]) Acquire(key string, ctor func() (V, error)) (*Handle[V], error) {
	if e := c.retain(key); e != nil {
		return &Handle[V]{cache: c, key: key, e: e}, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// A racing flight may have repopulated the slot while this
		// caller waited for the flight lock.
		if e := c.peek(key); e != nil {
			return e, nil
		}
		v, err := ctor()
		if err != nil {
			return nil, err
		}
		e := &entry[V]{value: v}
		c.mu.Lock()
		e.expires = c.now().Add(c.ttl)
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	// Every sharer of the flight takes its own reference. The entry may
	// have been invalidated in the meantime; holders keep it alive until
	// they release, matching the borrow contract.
	e := res.(*entry[V])
	c.mu.Lock()
	e.refs++
	c.mu.Unlock()
	return &Handle[V]{cache: c, key: key, e: e}, nil
}

// retain returns the live entry for key with a reference taken, or nil.
// Dead and expired entries are detached from the map here; outstanding
// holders still reference them directly.
func (c *Cache[V]) retain(key string) *entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if e.dead || !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil
	}
	e.refs++
	return e
}

// peek returns the live entry for key without taking a reference.
func (c *Cache[V]) peek(key string) *entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.dead || !c.now().Before(e.expires) {
		return nil
	}
	return e
}

// Value returns the cached value this handle borrows.
func (h *Handle[V]) Value() V {
	return h.e.value
}

// Release returns the borrow without discarding the entry. The value
// stays available to later acquirers until it expires.
func (h *Handle[V]) Release() {
	h.cache.release(h.key, h.e, false)
}

// Invalidate returns the borrow and marks the entry dead: the next
// Acquire for this key re-runs its constructor. Holders that acquired
// the entry earlier keep a valid reference until they release it.
func (h *Handle[V]) Invalidate() {
	h.cache.release(h.key, h.e, true)
}

func (c *Cache[V]) release(key string, e *entry[V], invalidate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if invalidate {
		e.dead = true
		if c.entries[key] == e {
			delete(c.entries, key)
		}
	}
	// An expired entry with no refs is unreachable once detached from
	// the map; the collector reclaims it.
}

// Len reports the number of entries currently mapped, including ones
// that expired but have not been looked up since.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
