package cache

import (
	"container/list"
	"time"
)

// record pairs a cached value with its storage time.
type record[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// lruCache is a capacity-bounded cache with least-recently-used eviction
// and a uniform time-to-live. It is not safe for concurrent use; callers
// hold the owning Metadata mutex.
type lruCache[V any] struct {
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

func newLRUCache[V any](capacity int, ttl time.Duration) *lruCache[V] {
	return &lruCache[V]{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// get returns the value for key if present and unexpired, promoting it to
// most recently used. Expired records are removed and reported as misses.
func (c *lruCache[V]) get(key string) (V, bool) {
	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	rec := elem.Value.(*record[V])
	if time.Since(rec.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.items, key)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return rec.value, true
}

// put stores a value, evicting the least-recently-used record when the
// insert would exceed capacity.
func (c *lruCache[V]) put(key string, value V) {
	if elem, ok := c.items[key]; ok {
		rec := elem.Value.(*record[V])
		rec.value = value
		rec.storedAt = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*record[V]).key)
		}
	}

	elem := c.order.PushFront(&record[V]{key: key, value: value, storedAt: time.Now()})
	c.items[key] = elem
}

func (c *lruCache[V]) remove(key string) {
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// removeFunc removes every record whose key satisfies match.
func (c *lruCache[V]) removeFunc(match func(key string) bool) {
	for key, elem := range c.items {
		if match(key) {
			c.order.Remove(elem)
			delete(c.items, key)
		}
	}
}

func (c *lruCache[V]) clear() {
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

func (c *lruCache[V]) len() int {
	return c.order.Len()
}
