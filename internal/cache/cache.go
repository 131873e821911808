// Package cache is a bounded in-memory cache with per-item expiration and
// least-recently-used replacement.
package cache

// This code has been adapted from github.com/patrickmn/go-cache

import (
	"runtime"
	"sync"
	"time"
)

const (
	// NoExpiration For use with functions that take an expiration time.
	NoExpiration time.Duration = -1
	// DefaultExpiration For use with functions that take an expiration time.
	// Equivalent to passing in the duration given to New().
	DefaultExpiration time.Duration = 0
)

type item[V any] struct {
	value      V
	expiration int64
	age        int64
}

func (it *item[V]) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

type Cache[V any] struct {
	*cache[V]
	// If this is confusing, see the comment at the bottom of New()
}

type cache[V any] struct {
	defaultExpiration time.Duration
	items             map[string]*item[V]
	mu                sync.Mutex
	janitor           *janitor
	size              int // nr items admitted
}

// Set adds an item to the cache, replacing any existing item. When the cache is
// full the least recently used (or an already expired) item makes room.
func (c *cache[V]) Set(k string, v V, d time.Duration) {
	if d == DefaultExpiration {
		d = c.defaultExpiration
	}
	now := time.Now().UnixNano()
	var e int64
	if d > 0 {
		e = now + int64(d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.items[k]; !found && c.size > 0 && len(c.items) >= c.size {
		delete(c.items, c.findLRU(now))
	}
	c.items[k] = &item[V]{value: v, expiration: e, age: now}
}

// findLRU returns an expired key if there is one, otherwise the least recently
// used. Callers hold the lock.
func (c *cache[V]) findLRU(now int64) string {
	toReplace := ""
	var oldest int64 = -1
	for k, it := range c.items {
		if it.expired(now) {
			return k
		}
		if oldest < 0 || it.age < oldest {
			oldest = it.age
			toReplace = k
		}
	}
	return toReplace
}

// Get returns the item and refreshes its age.
func (c *cache[V]) Get(k string) (V, bool) {
	var zero V
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	it, found := c.items[k]
	if !found || it.expired(now) {
		return zero, false
	}
	it.age = now
	return it.value, true
}

func (c *cache[V]) Delete(k string) {
	c.mu.Lock()
	delete(c.items, k)
	c.mu.Unlock()
}

// Len returns the number of items, expired ones included until the janitor runs.
func (c *cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// DeleteExpired removes all expired items.
func (c *cache[V]) DeleteExpired() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

type janitor struct {
	interval time.Duration
	stop     chan bool
}

func (j *janitor) run(c interface{ DeleteExpired() }) {
	ticker := time.NewTicker(j.interval)
	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-j.stop:
			ticker.Stop()
			return
		}
	}
}

func stopJanitor[V any](c *Cache[V]) {
	c.janitor.stop <- true
}

// New returns a cache holding at most size items (0 = unbounded). Items expire
// after defaultExpiration unless Set is given another duration; a negative
// value means no expiration. If cleanupInterval is positive, a janitor removes
// expired items periodically.
func New[V any](defaultExpiration, cleanupInterval time.Duration, size int) *Cache[V] {
	if defaultExpiration == 0 {
		defaultExpiration = NoExpiration
	}
	c := &cache[V]{
		defaultExpiration: defaultExpiration,
		items:             make(map[string]*item[V]),
		size:              size,
	}
	// This trick ensures that the janitor goroutine (which--granted it
	// was enabled--is running DeleteExpired on c forever) does not keep
	// the returned C object from being garbage collected. When it is
	// garbage collected, the finalizer stops the janitor goroutine, after
	// which c can be collected.
	C := &Cache[V]{c}
	if cleanupInterval > 0 {
		j := &janitor{interval: cleanupInterval, stop: make(chan bool)}
		c.janitor = j
		go j.run(c)
		runtime.SetFinalizer(C, stopJanitor[V])
	}
	return C
}
