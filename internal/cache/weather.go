package cache

import (
	"fmt"
	"time"

	"fieldwatch/internal/types"
)

// CoordinateKey buckets a latitude/longitude pair to three decimal places,
// about 100 m of ground distance. Nearby alerts on the same field resolve to
// the same key and share one upstream observation call.
func CoordinateKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", lat, lon)
}

// WeatherCache memoizes location observations between upstream calls. Live
// entries are served within the TTL; after that an entry remains readable
// through GetStale for the grace window, flagged stale, so evaluation can
// ride out short provider outages on last known data.
type WeatherCache struct {
	store *ttlStore[string, *types.Observation]
	grace time.Duration
}

// WeatherCacheConfig configures a WeatherCache.
type WeatherCacheConfig struct {
	TTL   time.Duration
	Grace time.Duration
	Clock types.Clock
}

// NewWeatherCache creates an empty WeatherCache.
func NewWeatherCache(cfg WeatherCacheConfig) *WeatherCache {
	return &WeatherCache{
		store: newTTLStore[string, *types.Observation](cfg.TTL, cfg.Clock),
		grace: cfg.Grace,
	}
}

// Get returns a live observation for the coordinate bucket.
func (c *WeatherCache) Get(lat, lon float64) (*types.Observation, bool) {
	return c.store.get(CoordinateKey(lat, lon))
}

// GetStale returns the last good observation within the grace window when no
// live entry exists. The returned copy is marked stale; the cached entry is
// left untouched for concurrent readers.
func (c *WeatherCache) GetStale(lat, lon float64) (*types.Observation, bool) {
	obs, ok, expired := c.store.getWithin(CoordinateKey(lat, lon), c.grace)
	if !ok {
		return nil, false
	}
	if !expired {
		return obs, true
	}
	stale := *obs
	stale.Stale = true
	return &stale, true
}

// Put stores an observation for the coordinate bucket.
func (c *WeatherCache) Put(lat, lon float64, obs *types.Observation) {
	c.store.put(CoordinateKey(lat, lon), obs)
}

// Sweep implements Sweepable. Entries are kept through the grace window so a
// provider outage right after expiry can still fall back to them.
func (c *WeatherCache) Sweep() int {
	return c.store.sweep(c.grace)
}

// Name implements Sweepable.
func (c *WeatherCache) Name() string { return "weather" }

// Len returns the number of resident entries, expired or not.
func (c *WeatherCache) Len() int { return c.store.len() }
