package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig configures an LRUCache.
type CacheConfig struct {
	// Capacity is the maximum number of entries.
	Capacity int
	// TTL is how long an entry stays valid. Zero means entries never
	// expire.
	TTL time.Duration
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache is a generic, thread-safe LRU cache with optional TTL.
type LRUCache[K comparable, V any] struct {
	config CacheConfig
	ll     *list.List
	cache  map[K]*list.Element
	lock   sync.Mutex
}

// NewLRUCache creates an LRU cache holding at most capacity entries.
func NewLRUCache[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive")
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
	}, nil
}

// Get returns the value for key, marking it most recently used. Expired
// entries are evicted on access.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}

	ent := element.Value.(*entry[K, V])
	if !ent.expiration.IsZero() && time.Now().After(ent.expiration) {
		c.removeElement(element)
		return zero, false
	}

	c.ll.MoveToFront(element)
	return ent.value, true
}

// Put stores a value, evicting the least recently used entry if the
// cache is full.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if c.config.TTL > 0 {
		expiration = time.Now().Add(c.config.TTL)
	}

	if element, ok := c.cache[key]; ok {
		ent := element.Value.(*entry[K, V])
		ent.value = value
		ent.expiration = expiration
		c.ll.MoveToFront(element)
		return
	}

	element := c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: expiration})
	c.cache[key] = element

	if c.ll.Len() > c.config.Capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Len returns the number of cached entries.
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

func (c *LRUCache[K, V]) removeElement(element *list.Element) {
	ent := element.Value.(*entry[K, V])
	delete(c.cache, ent.key)
	c.ll.Remove(element)
}
