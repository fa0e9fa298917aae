package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// CooldownTracker suppresses repeat dispatch for an alert inside a short
// window after a notification, independent of the alert's frequency policy.
// It exists to make scheduler overlap and rapid re-entry harmless: even if
// two cycles race, the second sees the cooldown the first set.
type CooldownTracker struct {
	mu     sync.Mutex
	until  map[uuid.UUID]time.Time
	window time.Duration
	clock  types.Clock
}

// NewCooldownTracker creates a CooldownTracker with the given suppression
// window. A nil clock defaults to the real UTC clock.
func NewCooldownTracker(window time.Duration, clock types.Clock) *CooldownTracker {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &CooldownTracker{
		until:  make(map[uuid.UUID]time.Time),
		window: window,
		clock:  clock,
	}
}

// Set starts the suppression window for an alert. Called after a successful
// dispatch.
func (t *CooldownTracker) Set(alertID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.until[alertID] = t.clock.Now().Add(t.window)
}

// Active reports whether the alert is still inside its suppression window.
// Expired entries are reclaimed on read.
func (t *CooldownTracker) Active(alertID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline, ok := t.until[alertID]
	if !ok {
		return false
	}
	if t.clock.Now().After(deadline) {
		delete(t.until, alertID)
		return false
	}
	return true
}

// Sweep implements Sweepable.
func (t *CooldownTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	removed := 0
	for id, deadline := range t.until {
		if now.After(deadline) {
			delete(t.until, id)
			removed++
		}
	}
	return removed
}

// Name implements Sweepable.
func (t *CooldownTracker) Name() string { return "cooldown" }
