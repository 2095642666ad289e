package dedupe

import (
	"container/list"
	"sync"
	"time"

	"barberbot/app/util/clock"
)

type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers keys for a TTL, bounded to maxSize entries. Expired entries
// are dropped lazily on every mark since the list is kept in seen order.
type Cache struct {
	clock   clock.Clock
	ttl     time.Duration
	maxSize int

	mu    sync.Mutex
	seen  map[string]*cacheEntry
	order *list.List
}

func New(clk clock.Clock, ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		clock:   clk,
		ttl:     ttl,
		maxSize: maxSize,
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
	}
}

// CheckAndMark reports whether key was seen within the TTL, and marks it.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.expireLocked(now)

	if entry, ok := c.seen[key]; ok {
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return true
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}

	c.seen[key] = &cacheEntry{
		seenAt:  now,
		element: c.order.PushBack(key),
	}
	return false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) expireLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(c.seen[key].seenAt) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	key, _ := elem.Value.(string)
	c.order.Remove(elem)
	delete(c.seen, key)
}
