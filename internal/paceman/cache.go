package paceman

import (
	"sync"
	"time"
)

// Cache is the throttling capability the client needs for shared upstream
// responses (one live-runs fetch serves every watcher). Injected so tests can
// substitute a deterministic implementation.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, v any, ttl time.Duration)
}

type cacheItem struct {
	v       any
	expires time.Time
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

// NewMemoryCache returns a TTL cache backed by a plain map. Entries are
// dropped lazily on read.
func NewMemoryCache() Cache {
	return &memoryCache{items: map[string]cacheItem{}, now: time.Now}
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(it.expires) {
		delete(c.items, key)
		return nil, false
	}
	return it.v, true
}

func (c *memoryCache) Set(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = cacheItem{v: v, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}
