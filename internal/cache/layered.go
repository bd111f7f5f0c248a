package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// LayeredCache checks memory before disk and promotes disk hits
type LayeredCache struct {
	memory   *MemoryCache
	disk     *DiskCache
	diskHits atomic.Int64
}

// NewLayeredCache creates a memory cache backed by a disk cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

// Get retrieves a value, memory first
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		c.diskHits.Add(1)
		_ = c.memory.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}

// Prune drops expired entries from the disk layer
func (c *LayeredCache) Prune() (int, error) {
	return c.disk.Prune()
}

// Stats reports hits from either layer; a miss means both layers missed
func (c *LayeredCache) Stats() Stats {
	mem := c.memory.Stats()
	disk := c.diskHits.Load()
	return Stats{
		Hits:    mem.Hits + disk,
		Misses:  mem.Misses - disk,
		Entries: mem.Entries,
	}
}
