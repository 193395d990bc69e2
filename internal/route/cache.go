package route

import (
	"net/netip"

	"github.com/shaj13/libcache"
	_ "github.com/shaj13/libcache/lru"
)

type lookupResult struct {
	entry Entry
	ok    bool
}

// Cache memoizes Table lookups in an LRU, misses included. The table is
// immutable, so cached results never go stale.
type Cache struct {
	*Table
	lru libcache.Cache
}

func NewCache(t *Table, size int) *Cache {
	return &Cache{Table: t, lru: libcache.LRU.New(size)}
}

func (c *Cache) Lookup(dst netip.Addr) (Entry, bool) {
	if v, ok := c.lru.Load(dst); ok {
		r := v.(lookupResult)
		return r.entry, r.ok
	}
	e, ok := c.Table.Lookup(dst)
	c.lru.Store(dst, lookupResult{entry: e, ok: ok})
	return e, ok
}

// Cached is the number of destinations currently memoized.
func (c *Cache) Cached() int {
	return c.lru.Len()
}
