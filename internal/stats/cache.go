// internal/stats/cache.go
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
)

// DefaultTTL is how long a cached statistics snapshot stays valid,
// measured from insertion. There is no sliding expiry.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	stats     *Statistics
	expiresAt time.Time
}

// Cache maps (item name, server) to a statistics snapshot. A stored nil
// snapshot is a valid entry: it remembers that an item had no history so
// the remote service is not re-queried within the TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	hits   int64
	misses int64

	now func() time.Time
}

// NewCache creates a cache with the given TTL (DefaultTTL when zero).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(itemName string, server gnjoy.Server) string {
	return fmt.Sprintf("%d|%s", server, itemName)
}

// Get returns the cached snapshot and whether the key was present and
// unexpired. The snapshot itself may be nil for a cached "no history".
func (c *Cache) Get(itemName string, server gnjoy.Server) (*Statistics, bool) {
	key := cacheKey(itemName, server)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.stats, true
}

// Put stores a snapshot (nil included) under the key for one TTL window.
func (c *Cache) Put(itemName string, server gnjoy.Server, s *Statistics) {
	key := cacheKey(itemName, server)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		stats:     s,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops one key, used when an item is renamed away.
func (c *Cache) Invalidate(itemName string, server gnjoy.Server) {
	key := cacheKey(itemName, server)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HitRate reports the lifetime hit ratio for observability.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
