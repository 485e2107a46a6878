package headlessblog

import (
	"context"
	"sync"
	"time"
)

// loadTimeout bounds a reload. Reloads are detached from the requesting
// client, since other readers wait on the same lock.
const loadTimeout = 2 * time.Minute

// IndexCache is an in-memory cache of the resolved index data with a TTL.
type IndexCache struct {
	mu      sync.RWMutex
	data    *IndexData
	fetched time.Time
	ttl     time.Duration
	load    func(context.Context) (IndexData, error)
}

// NewIndexCache creates an IndexCache that calls load on a miss.
func NewIndexCache(ttl time.Duration, load func(context.Context) (IndexData, error)) *IndexCache {
	return &IndexCache{ttl: ttl, load: load}
}

func (c *IndexCache) valid() bool {
	return c.data != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *IndexCache) Invalidate() {
	c.mu.Lock()
	c.data = nil
	c.mu.Unlock()
}

// Get returns the cached data, loading it if the cache is empty or stale.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *IndexCache) Get(ctx context.Context) (IndexData, error) {
	c.mu.RLock()
	if c.valid() {
		data := *c.data
		c.mu.RUnlock()
		return data, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return *c.data, nil
	}
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()
	data, err := c.load(loadCtx)
	if err != nil {
		return IndexData{}, err
	}
	c.data = &data
	c.fetched = time.Now()
	return data, nil
}
