package http

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// ttlCache caches read responses. Entries expire after the TTL and the
// least recently used entry is dropped when the cache is full.
type ttlCache[T any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	order *list.List
	byKey map[string]*entry[T]
}

type entry[T any] struct {
	key     string
	value   T
	expires time.Time
	elem    *list.Element
}

func newTTLCache[T any](capacity int, ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		cap:   capacity,
		ttl:   ttl,
		order: list.New(),
		byKey: make(map[string]*entry[T]),
	}
}

func (c *ttlCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.byKey[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expires) {
		c.drop(e)
		return zero, false
	}
	c.order.MoveToFront(e.elem)
	return e.value, true
}

func (c *ttlCache[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byKey[key]; ok {
		e.value = value
		e.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(e.elem)
		return
	}

	e := &entry[T]{key: key, value: value, expires: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(e)
	c.byKey[key] = e

	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.drop(oldest.Value.(*entry[T]))
	}
}

func (c *ttlCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byKey[key]; ok {
		c.drop(e)
	}
}

// DeletePrefix drops every entry whose key starts with prefix. Write
// handlers use it to invalidate an owner's cached reads.
func (c *ttlCache[T]) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.byKey {
		if strings.HasPrefix(key, prefix) {
			c.drop(e)
		}
	}
}

// CleanExpired removes all expired entries and reports how many.
func (c *ttlCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range c.byKey {
		if now.After(e.expires) {
			c.drop(e)
			removed++
		}
	}
	return removed
}

func (c *ttlCache[T]) drop(e *entry[T]) {
	c.order.Remove(e.elem)
	delete(c.byKey, e.key)
}
