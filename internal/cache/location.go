package cache

import (
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// LocationCache memoizes location metadata by location id. Location rows
// change rarely, so the TTL is long; a rename or coordinate fix simply takes
// one TTL period to be picked up.
type LocationCache struct {
	store *ttlStore[uuid.UUID, *types.LocationMetadata]
}

// NewLocationCache creates an empty LocationCache.
func NewLocationCache(ttl time.Duration, clock types.Clock) *LocationCache {
	return &LocationCache{
		store: newTTLStore[uuid.UUID, *types.LocationMetadata](ttl, clock),
	}
}

// Get returns a live metadata entry for the location id.
func (c *LocationCache) Get(id uuid.UUID) (*types.LocationMetadata, bool) {
	return c.store.get(id)
}

// Put stores a metadata entry.
func (c *LocationCache) Put(id uuid.UUID, loc *types.LocationMetadata) {
	c.store.put(id, loc)
}

// Sweep implements Sweepable.
func (c *LocationCache) Sweep() int {
	return c.store.sweep(0)
}

// Name implements Sweepable.
func (c *LocationCache) Name() string { return "location" }

// Len returns the number of resident entries, expired or not.
func (c *LocationCache) Len() int { return c.store.len() }
