package resolver

import (
	"net/netip"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	MinCacheTTL = 5 * time.Second
	MaxCacheTTL = time.Hour
)

// Cache keeps answers for as long as their records allow, bounded by
// MinCacheTTL and MaxCacheTTL.
type Cache struct {
	entries *cache.Cache
}

func NewCache(defaultTTL time.Duration) *Cache {
	return &Cache{entries: cache.New(defaultTTL, defaultTTL/2)}
}

func (c *Cache) Get(name string) ([]netip.Addr, bool) {
	v, ok := c.entries.Get(name)
	if !ok {
		return nil, false
	}
	return slices.Clone(v.([]netip.Addr)), true
}

func (c *Cache) Set(name string, addrs []netip.Addr, ttl time.Duration) {
	c.entries.Set(name, slices.Clone(addrs), min(max(ttl, MinCacheTTL), MaxCacheTTL))
}

func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
