package store

import "sync"

// ctagCache holds computed ctags while a watcher keeps them fresh. Every
// drop bumps gen so values computed before a change are not stored.
type ctagCache struct {
	mu  sync.Mutex
	gen uint64
	m   map[string]string
}

func newCTagCache() *ctagCache {
	return &ctagCache{m: map[string]string{}}
}

func (c *ctagCache) get(p string) (string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[p]
	return v, c.gen, ok
}

func (c *ctagCache) put(p, v string, gen uint64) {
	c.mu.Lock()
	if gen == c.gen {
		c.m[p] = v
	}
	c.mu.Unlock()
}

func (c *ctagCache) drop(p string) {
	c.mu.Lock()
	c.gen++
	delete(c.m, p)
	c.mu.Unlock()
}
