// ABOUTME: Thread-safe TTL cache for deduplicating change-feed row announcements
// ABOUTME: Prevents a row whose created_at ties across poll windows from re-announcing

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the sighting time and list element for a cached key.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of keys the poller
// has already announced within a session. Insertion order is kept in a
// doubly-linked list for O(1) eviction of the oldest key.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		keys:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Observe atomically records a sighting of key and reports whether it was
// already present and unexpired. Returns true for a duplicate, false for a
// first sighting (which is now marked).
func (c *Cache) Observe(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// An expired entry is reused in place rather than re-inserted, so a key
	// never holds two list elements at once.
	if e, ok := c.keys[key]; ok {
		fresh := time.Since(e.seenAt) < c.ttl
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return fresh
	}

	if len(c.keys) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.keys[key] = &entry{seenAt: time.Now(), element: elem}
	return false
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.keys, key)
}

// cleanupLoop periodically removes expired entries until Close.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.keys {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.keys, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
