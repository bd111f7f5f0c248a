package cache

import (
	"slices"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Stats counts lookups against a cache
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// MemoryCache keeps extraction results for the lifetime of a run. Values are
// copied in and out so callers cannot alias cached bytes.
type MemoryCache struct {
	items  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a memory cache; expired entries are swept every
// cleanupInterval
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if val, found := c.items.Get(key); found {
		if data, ok := val.([]byte); ok {
			c.hits.Add(1)
			return slices.Clone(data), true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a value; a zero ttl uses the cache default
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.items.Set(key, slices.Clone(value), ttl)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, including expired ones not yet swept
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

// Stats reports lookups since creation
func (c *MemoryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.Len()}
}
