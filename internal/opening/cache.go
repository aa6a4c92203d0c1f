package opening

import "sync"

// Key addresses the volatile cache tier: a filter generation plus a position.
// Bumping the filter id on any view change is what keeps stale entries from
// ever being served.
type Key struct {
	FilterID uint64
	Hash     uint64
}

// Cache is the in-memory tier: a bounded map with FIFO eviction.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[Key]Result
	order   []Key
}

func NewCache(max int) *Cache {
	if max <= 0 {
		max = 5000
	}
	return &Cache{max: max, entries: make(map[Key]Result)}
}

func (c *Cache) Get(k Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[k]
	return r, ok
}

// Put stores a result, evicting the oldest entry when full.
func (c *Cache) Put(k Key, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists {
		for len(c.entries) >= c.max && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, k)
	}
	c.entries[k] = r
}

// SetEval attaches an engine evaluation to a cached result, if present.
func (c *Cache) SetEval(k Key, eval string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[k]
	if !ok {
		return false
	}
	r.Eval = eval
	c.entries[k] = r
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]Result)
	c.order = nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
