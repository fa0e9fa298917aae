package cache

import (
	"sync"
	"time"

	"fieldwatch/internal/types"
)

// UpstreamLimiter bounds total observation provider calls to a fixed quota
// per window. When the quota is exhausted callers fall back to stale cached
// data rather than blocking; TryAcquire never waits.
type UpstreamLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	used        int
	clock       types.Clock
}

// NewUpstreamLimiter creates a limiter allowing limit calls per window. A
// nil clock defaults to the real UTC clock.
func NewUpstreamLimiter(limit int, window time.Duration, clock types.Clock) *UpstreamLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &UpstreamLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// TryAcquire consumes one call from the quota if any remains. The window
// resets once it has fully elapsed.
func (l *UpstreamLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.used = 0
	}
	if l.used >= l.limit {
		return false
	}
	l.used++
	return true
}

// Snapshot returns the quota state: calls used, the limit, and when the
// current window resets.
func (l *UpstreamLimiter) Snapshot() (used, limit int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() {
		return 0, l.limit, time.Time{}
	}
	return l.used, l.limit, l.windowStart.Add(l.window)
}
