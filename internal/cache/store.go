// Package cache provides the engine's in-memory shared state: TTL-bounded
// observation and location caches, the per-alert cooldown tracker, and the
// upstream call rate limiter. All types are safe for concurrent use by
// evaluation tasks within a batch; races where one task populates an entry
// another was about to write are first-writer-wins and harmless.
//
// Eviction is lazy on read, plus a periodic Janitor sweep on a longer
// interval to bound memory. Nothing here persists across restarts.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldwatch/internal/types"
)

// entry wraps a cached value with its write time.
type entry[V any] struct {
	value    V
	storedAt time.Time
}

// ttlStore is the mutex-guarded TTL map underlying the caches. Expiry is
// checked lazily on read against the injected clock.
type ttlStore[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   types.Clock
}

func newTTLStore[K comparable, V any](ttl time.Duration, clock types.Clock) *ttlStore[K, V] {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ttlStore[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clock,
	}
}

// get returns a live entry. Entries past their TTL are a miss.
func (s *ttlStore[K, V]) get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.clock.Now().Sub(e.storedAt) > s.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// getWithin returns an entry no older than ttl+grace, reporting whether it
// is past its TTL. Used for stale-while-revalidate reads when the upstream
// source is unavailable.
func (s *ttlStore[K, V]) getWithin(key K, grace time.Duration) (V, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false, false
	}
	age := s.clock.Now().Sub(e.storedAt)
	if age > s.ttl+grace {
		var zero V
		return zero, false, false
	}
	return e.value, true, age > s.ttl
}

func (s *ttlStore[K, V]) put(key K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: v, storedAt: s.clock.Now()}
}

// sweep removes entries older than ttl+grace and returns how many were
// reclaimed.
func (s *ttlStore[K, V]) sweep(grace time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.storedAt) > s.ttl+grace {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *ttlStore[K, V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweepable is implemented by caches the Janitor maintains.
type Sweepable interface {
	// Sweep reclaims expired entries, returning how many were removed.
	Sweep() int

	// Name identifies the cache in sweep logs.
	Name() string
}

// Janitor periodically sweeps the registered caches. One janitor serves all
// of the engine's caches so there is a single maintenance goroutine to
// reason about.
type Janitor struct {
	interval time.Duration
	targets  []Sweepable
	logger   *slog.Logger
}

// NewJanitor creates a Janitor sweeping the given targets every interval.
// A nil logger defaults to slog.Default().
func NewJanitor(interval time.Duration, logger *slog.Logger, targets ...Sweepable) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{interval: interval, targets: targets, logger: logger}
}

// Run sweeps on the configured interval until the context is cancelled.
// Blocking; callers start it in its own goroutine.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, target := range j.targets {
				if removed := target.Sweep(); removed > 0 {
					j.logger.DebugContext(ctx, "cache sweep reclaimed entries",
						"cache", target.Name(),
						"removed", removed,
					)
				}
			}
		}
	}
}
