package catalog

import "sync"

// Cache remembers lookup outcomes, including misses.
type Cache interface {
	// Get returns the cached artist and whether the key has been looked up before.
	// An empty artist with ok set records a miss.
	Get(k Key) (artist string, ok bool)
	Put(k Key, artist string)
	Len() int
}

// RunCache is scoped to one resolution run and is not safe for concurrent use.
type RunCache struct {
	entries map[Key]string
}

// NewRunCache returns an empty cache for a single run.
func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[Key]string)}
}

func (c *RunCache) Get(k Key) (string, bool) {
	v, ok := c.entries[k]
	return v, ok
}

func (c *RunCache) Put(k Key, artist string) {
	c.entries[k] = artist
}

func (c *RunCache) Len() int {
	return len(c.entries)
}

// SharedCache may be shared by concurrent runs for different users.
//
// Only hits are shared; misses stay local to the run that saw them so a
// transient failure in one run does not hide the artist from others.
type SharedCache struct {
	mu      sync.RWMutex
	entries map[Key]string
}

// NewSharedCache returns an empty concurrency-safe cache.
func NewSharedCache() *SharedCache {
	return &SharedCache{entries: make(map[Key]string)}
}

func (c *SharedCache) Get(k Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[k]
	return v, ok
}

func (c *SharedCache) Put(k Key, artist string) {
	if artist == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = artist
}

func (c *SharedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
