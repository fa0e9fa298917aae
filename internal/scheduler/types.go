package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// AlertSource loads the active alert definitions at the start of each cycle.
// Implemented by the alert repository.
type AlertSource interface {
	ListActive(ctx context.Context) ([]*types.AlertDefinition, error)
}

// LocationSource loads location metadata on a location cache miss.
// Implemented by the location repository.
type LocationSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.LocationMetadata, error)
}

// ObservationResolver returns the current observation for a coordinate pair,
// consulting the weather cache and the rate-limited provider behind it.
// Implemented by the upstream observation service.
type ObservationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (*types.Observation, error)
}

// CheckWriter appends one evaluation outcome to the check log. Implemented
// by the check history repository.
type CheckWriter interface {
	AppendCheck(ctx context.Context, rec *types.AlertCheckRecord) error
}

// TriggerWriter appends one trigger record. Implemented by the trigger
// repository.
type TriggerWriter interface {
	Append(ctx context.Context, rec *types.AlertTriggerRecord) error
}

// AlertStateWriter updates an alert's last-triggered timestamp after a
// successful dispatch. Implemented by the alert repository.
type AlertStateWriter interface {
	SetLastTriggered(ctx context.Context, alertID uuid.UUID, at time.Time) error
}

// CycleLease guards multi-instance deployments: only the holder runs a
// cycle per period. Implemented by the cycle lease repository.
type CycleLease interface {
	Acquire(ctx context.Context, name string, holderID string, ttl time.Duration) (bool, error)
}

// CycleLog records cycle start/finish rows for operational history.
// Implemented by the cycle history repository.
type CycleLog interface {
	Start(ctx context.Context) (uuid.UUID, error)
	Finish(ctx context.Context, rec *types.CycleRecord) error
}

// CycleReporter publishes cycle outcomes and a liveness heartbeat to an
// external metrics sink. Implemented by the CloudWatch engine metrics.
type CycleReporter interface {
	RecordCycle(ctx context.Context, rec *types.CycleRecord, duration time.Duration)
	Heartbeat(ctx context.Context)
}

// cycleStats accumulates per-cycle counters. Evaluation goroutines and
// dispatch workers update it concurrently.
type cycleStats struct {
	mu sync.Mutex

	loaded     int
	evaluated  int
	triggered  int
	dispatched int
	skipped    int
	failed     int
}

func (s *cycleStats) setLoaded(n int) {
	s.mu.Lock()
	s.loaded = n
	s.mu.Unlock()
}

func (s *cycleStats) addEvaluated(n int) {
	s.mu.Lock()
	s.evaluated += n
	s.mu.Unlock()
}

func (s *cycleStats) addTriggered(n int) {
	s.mu.Lock()
	s.triggered += n
	s.mu.Unlock()
}

func (s *cycleStats) addDispatched(n int) {
	s.mu.Lock()
	s.dispatched += n
	s.mu.Unlock()
}

func (s *cycleStats) addSkipped(n int) {
	s.mu.Lock()
	s.skipped += n
	s.mu.Unlock()
}

func (s *cycleStats) addFailed(n int) {
	s.mu.Lock()
	s.failed += n
	s.mu.Unlock()
}

// fill copies the counters into a cycle record.
func (s *cycleStats) fill(rec *types.CycleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Loaded = s.loaded
	rec.Evaluated = s.evaluated
	rec.Triggered = s.triggered
	rec.Dispatched = s.dispatched
	rec.Skipped = s.skipped
	rec.Failed = s.failed
}

// Pipeline phases reported on the stats endpoint. A cycle moves through
// loading, batching, evaluating, and dispatching, then returns to idle.
const (
	phaseIdle        = "idle"
	phaseLoading     = "loading"
	phaseBatching    = "batching"
	phaseEvaluating  = "evaluating"
	phaseDispatching = "dispatching"
)

// Snapshot is the scheduler state exposed on the ops stats endpoint.
type Snapshot struct {
	Running       bool               `json:"running"`
	Phase         string             `json:"phase"`
	CyclesStarted uint64             `json:"cycles_started"`
	LastCycle     *types.CycleRecord `json:"last_cycle,omitempty"`
	LastDuration  string             `json:"last_cycle_duration,omitempty"`
}
