package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU evicts the least recently used entry once Capacity is exceeded.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	order    *list.List
	mu       sync.Mutex
	onEvict  func(key K, value V)
}

type Option[K comparable, V any] func(*LRU[K, V])

// WithEvictFunc registers fn to release values leaving the cache through
// eviction, Remove, Purge or replacement by Put. fn runs after the cache lock
// is released, so it may block without stalling other callers.
func WithEvictFunc[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// NewLRU panics if capacity is not positive.
func NewLRU[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key. A replaced value is passed to the evict func.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	evicted := c.put(key, value)
	c.mu.Unlock()
	c.release(evicted)
}

// GetOrCreate returns the cached value or stores the result of create.
// create runs under the cache lock, so concurrent callers for the same key
// never build two values. It must not block. Errors are not cached.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		value := el.Value.(*entry[K, V]).value
		c.mu.Unlock()
		return value, nil
	}

	value, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero V
		return zero, err
	}
	evicted := c.put(key, value)
	c.mu.Unlock()
	c.release(evicted)
	return value, nil
}

// Remove drops key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	var evicted []entry[K, V]
	if ok {
		evicted = append(evicted, c.unlink(el))
	}
	c.mu.Unlock()
	c.release(evicted)
	return ok
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes every entry, calling the evict func for each.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	evicted := make([]entry[K, V], 0, c.order.Len())
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		evicted = append(evicted, c.unlink(el))
	}
	c.mu.Unlock()
	c.release(evicted)
}

// Caller holds c.mu. Returned entries go to release once it is unlocked.
func (c *LRU[K, V]) put(key K, value V) []entry[K, V] {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		e := el.Value.(*entry[K, V])
		old := e.value
		e.value = value
		return []entry[K, V]{{key: key, value: old}}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.order.Len() > c.capacity {
		return []entry[K, V]{c.unlink(c.order.Back())}
	}
	return nil
}

// Caller holds c.mu.
func (c *LRU[K, V]) unlink(el *list.Element) entry[K, V] {
	c.order.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	return *e
}

func (c *LRU[K, V]) release(evicted []entry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.value)
	}
}
