// Package cache provides a small thread-safe LRU cache.
//
// It backs the compiled pattern cache and the decoded log content caches.
// Keys are content identities (a pattern source, a path plus mtime and size,
// a content hash), so entries never need invalidation: a change produces a
// new key and the stale entry ages out.
package cache

import (
	"container/list"
	"sync"
)

// DefaultSize is used when a cache is created with a non-positive size.
const DefaultSize = 100

// LRU is a fixed-capacity least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*list.Element
	lruList *list.List
	maxSize int
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates an LRU holding at most maxSize entries.
func New[K comparable, V any](maxSize int) *LRU[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &LRU[K, V]{
		items:   make(map[K]*list.Element),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Get returns the cached value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Add stores value under key, evicting the oldest entry if the cache is full.
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key, value)
}

func (c *LRU[K, V]) add(key K, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.lruList.MoveToFront(elem)
		return
	}
	if c.lruList.Len() >= c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[K, V]).key)
		}
	}
	c.items[key] = c.lruList.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// load runs without the lock held; when two goroutines miss at once the
// first stored value wins. Errors from load are not cached.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check: another goroutine might have added it while we were loading
	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, nil
	}
	c.add(key, v)
	return v, nil
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lruList.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the current number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}
