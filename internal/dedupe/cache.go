// ABOUTME: Bounded TTL set of recently seen inbound event IDs
// ABOUTME: Expired entries are pruned lazily from the oldest end on each call

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/coven-handoff/internal/clock"
)

type entry struct {
	key  string
	seen time.Time
}

// Cache remembers keys for a TTL, holding at most maxSize of them. The list
// is ordered by last-seen time, oldest at the front.
type Cache struct {
	mu      sync.Mutex
	clk     clock.Clock
	ttl     time.Duration
	maxSize int
	order   *list.List
	index   map[string]*list.Element
}

// New creates a Cache. A nil clk uses the wall clock.
func New(clk clock.Clock, ttl time.Duration, maxSize int) *Cache {
	if clk == nil {
		clk = clock.Real{}
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		clk:     clk,
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Seen reports whether key was recorded within the TTL, and records it.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.pruneLocked(now)

	if elem, ok := c.index[key]; ok {
		elem.Value.(*entry).seen = now
		c.order.MoveToBack(elem)
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seen: now})
	return false
}

// Len returns how many keys are remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.clk.Now())
	return c.order.Len()
}

func (c *Cache) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).seen) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.index, elem.Value.(*entry).key)
}
