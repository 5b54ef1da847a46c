// Package teamcache provides a small in-process cache for per-team
// configuration that is read on every evaluation but changes rarely, such
// as collection stages and escalation rules. Entries expire on a TTL, so a
// bounded staleness window after configuration writes is accepted; writers
// call Invalidate to shrink it.
package teamcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a TTL cache keyed by team id within a named region.
type Cache struct {
	inner *gocache.Cache
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{inner: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached value for (region, teamID) if present and fresh.
func (c *Cache) Get(region, teamID string) (interface{}, bool) {
	return c.inner.Get(region + ":" + teamID)
}

// Set stores a value for (region, teamID) with the default TTL.
func (c *Cache) Set(region, teamID string, value interface{}) {
	c.inner.Set(region+":"+teamID, value, gocache.DefaultExpiration)
}

// Invalidate drops the entry for (region, teamID). Configuration writers
// call it so readers converge faster than the TTL alone allows.
func (c *Cache) Invalidate(region, teamID string) {
	c.inner.Delete(region + ":" + teamID)
}
