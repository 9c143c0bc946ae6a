package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Key identifies one cached stage output.
type Key struct {
	Stage     string
	Symbol    string
	Timeframe string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Stage, k.Symbol, k.Timeframe)
}

// SnapshotCache caches expensive intermediate stage outputs. A miss is
// indistinguishable from "not yet computed"; the pipeline recomputes
// transparently.
type SnapshotCache interface {
	Get(key Key) (any, bool)
	Set(key Key, value any)
	Delete(key Key)
	Len() int
}

type entry struct {
	key       Key
	value     any
	expiresAt time.Time
}

// StageCache is a TTL + LRU bounded in-memory SnapshotCache. Reads
// promote entries; writes at capacity evict the least recently used.
// Safe for concurrent use by symbol workers.
type StageCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List // front = most recently used
	items      map[Key]*list.Element
	now        func() time.Time
}

// NewStageCache creates a cache bounded to maxEntries with the given TTL.
func NewStageCache(maxEntries int, ttl time.Duration) *StageCache {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &StageCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		items:      make(map[Key]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached value when present and unexpired.
func (c *StageCache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores a value, evicting the least recently used entry at capacity.
func (c *StageCache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.items[key] = el
}

// Delete removes an entry if present.
func (c *StageCache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len reports the live entry count, expired entries included until read
// or evicted.
func (c *StageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *StageCache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
}
