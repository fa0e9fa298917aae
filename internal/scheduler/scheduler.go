// Package scheduler drives the periodic alert evaluation cycle: load active
// definitions, resolve locations and observations through the caches,
// evaluate conditions, apply persistence and frequency policy, and hand
// confirmed triggers to the dispatch pool.
//
// One scheduler loop runs per process. Within a cycle, evaluation is
// parallelized with bounded concurrency; dispatch side effects run on a
// separate bounded worker pool that the cycle drains before completing. A
// failure evaluating one alert never aborts another alert or the loop.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/cache"
	"fieldwatch/internal/config"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/rules"
	"fieldwatch/internal/types"
)

// Scheduler owns the evaluation loop and the per-cycle pipeline.
type Scheduler struct {
	cfg config.SchedulerConfig

	alerts        AlertSource
	locations     LocationSource
	locationCache *cache.LocationCache
	observations  ObservationResolver
	checks        CheckWriter
	persistence   *rules.PersistenceTracker
	policy        *rules.NotificationPolicy
	cooldown      *cache.CooldownTracker
	dispatcher    types.NotificationDispatcher
	triggers      TriggerWriter
	alertState    AlertStateWriter

	lease    CycleLease
	cycleLog CycleLog
	reporter CycleReporter

	holderID string
	clock    types.Clock
	logger   *slog.Logger

	// running is the in-process single-flight gate: a tick whose previous
	// cycle is still in flight is skipped, not queued.
	running       atomic.Bool
	cyclesStarted atomic.Uint64
	phase         atomic.Value

	snapMu  sync.Mutex
	last    *types.CycleRecord
	lastDur time.Duration
}

// SchedulerDeps bundles the collaborators a Scheduler needs. Lease, CycleLog,
// and Reporter are optional; everything else is required.
type SchedulerDeps struct {
	Config        config.SchedulerConfig
	Alerts        AlertSource
	Locations     LocationSource
	LocationCache *cache.LocationCache
	Observations  ObservationResolver
	Checks        CheckWriter
	Persistence   *rules.PersistenceTracker
	Policy        *rules.NotificationPolicy
	Cooldown      *cache.CooldownTracker
	Dispatcher    types.NotificationDispatcher
	Triggers      TriggerWriter
	AlertState    AlertStateWriter

	Lease    CycleLease
	CycleLog CycleLog
	Reporter CycleReporter

	// HolderID identifies this instance in the cycle lease. Empty generates
	// a random identity.
	HolderID string
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewScheduler creates a Scheduler from its dependencies.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	holderID := deps.HolderID
	if holderID == "" {
		holderID = "engine-" + uuid.New().String()[:8]
	}
	sched := &Scheduler{
		cfg:           deps.Config,
		alerts:        deps.Alerts,
		locations:     deps.Locations,
		locationCache: deps.LocationCache,
		observations:  deps.Observations,
		checks:        deps.Checks,
		persistence:   deps.Persistence,
		policy:        deps.Policy,
		cooldown:      deps.Cooldown,
		dispatcher:    deps.Dispatcher,
		triggers:      deps.Triggers,
		alertState:    deps.AlertState,
		lease:         deps.Lease,
		cycleLog:      deps.CycleLog,
		reporter:      deps.Reporter,
		holderID:      holderID,
		clock:         clock,
		logger:        logger,
	}
	sched.phase.Store(phaseIdle)
	return sched
}

// Run blocks, executing evaluation cycles until the context is canceled.
// The first cycle fires after a random startup delay; subsequent cycles
// follow the configured interval with bounded random jitter.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.StartupDelayMax > 0 {
		delay := rand.N(s.cfg.StartupDelayMax)
		s.logger.InfoContext(ctx, "delaying first evaluation cycle",
			"delay", delay.Round(time.Second).String(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		s.tick(ctx)

		// Reset from the timer, not the wall clock, so drift does not
		// accumulate across cycles.
		timer.Reset(s.nextInterval())
	}
}

// tick runs one scheduled attempt: heartbeat, single-flight gate, optional
// lease check, then the cycle itself.
func (s *Scheduler) tick(ctx context.Context) {
	if s.reporter != nil {
		s.reporter.Heartbeat(ctx)
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "previous cycle still running, skipping tick")
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer s.running.Store(false)

	if s.cfg.LeaseEnabled && s.lease != nil {
		acquired, err := s.lease.Acquire(ctx, s.cfg.LeaseName, s.holderID, s.leaseTTL())
		if err != nil {
			// The lease is best-effort: cooldowns make an overlapping
			// cycle harmless, so availability wins over strictness.
			s.logger.WarnContext(ctx, "cycle lease check failed, proceeding without lease",
				"error", err,
			)
		} else if !acquired {
			s.logger.InfoContext(ctx, "cycle lease held by another instance, skipping cycle",
				"lease", s.cfg.LeaseName,
			)
			metrics.CyclesTotal.WithLabelValues("skipped").Inc()
			return
		}
	}

	s.runCycle(ctx)
}

// nextInterval returns the delay before the next tick: the configured
// interval plus a uniform jitter in [-Jitter, +Jitter]. The floor guards
// against a jitter configured larger than the interval.
func (s *Scheduler) nextInterval() time.Duration {
	d := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		d += rand.N(2*s.cfg.Jitter) - s.cfg.Jitter
	}
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// leaseTTL bounds how long a crashed instance blocks its peers. One full
// interval is enough: by then the next tick has come around anyway.
func (s *Scheduler) leaseTTL() time.Duration {
	return s.cfg.Interval
}

// runCycle executes one full evaluation cycle and records its outcome.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.clock.Now()
	traceID := uuid.New().String()
	ctx = types.WithTraceID(ctx, traceID)
	s.cyclesStarted.Add(1)

	rec := &types.CycleRecord{
		StartedAt: start,
		Status:    "running",
	}
	if s.cycleLog != nil {
		id, err := s.cycleLog.Start(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to open cycle history entry", "error", err)
		} else {
			rec.ID = id
		}
	}

	s.logger.InfoContext(ctx, "evaluation cycle starting", "trace_id", traceID)

	stats, err := s.evaluateAll(ctx)
	duration := s.clock.Now().Sub(start)
	stats.fill(rec)

	if err != nil {
		rec.Status = "failed"
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		s.logger.ErrorContext(ctx, "evaluation cycle failed",
			"trace_id", traceID,
			"error", err,
			"duration", duration.Round(time.Millisecond).String(),
		)
	} else {
		rec.Status = "completed"
		metrics.CyclesTotal.WithLabelValues("completed").Inc()
		s.logger.InfoContext(ctx, "evaluation cycle complete",
			"trace_id", traceID,
			"loaded", rec.Loaded,
			"evaluated", rec.Evaluated,
			"triggered", rec.Triggered,
			"dispatched", rec.Dispatched,
			"skipped", rec.Skipped,
			"failed", rec.Failed,
			"duration", duration.Round(time.Millisecond).String(),
		)
	}
	metrics.CycleDuration.Observe(duration.Seconds())

	if s.cycleLog != nil && rec.ID != uuid.Nil {
		finished := s.clock.Now()
		rec.FinishedAt = &finished
		if ferr := s.cycleLog.Finish(ctx, rec); ferr != nil {
			s.logger.WarnContext(ctx, "failed to close cycle history entry",
				"cycle_id", rec.ID,
				"error", ferr,
			)
		}
	}

	if s.reporter != nil {
		s.reporter.RecordCycle(ctx, rec, duration)
	}

	s.storeLast(rec, duration)
}

// RunOnce executes a single cycle immediately, bypassing the timer, the
// single-flight gate, and the lease. Intended for tests and manual
// operational triggers.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

// Snapshot returns the current scheduler state for the ops surface.
func (s *Scheduler) Snapshot() Snapshot {
	phase, _ := s.phase.Load().(string)
	if phase == "" {
		phase = phaseIdle
	}
	snap := Snapshot{
		Running:       s.running.Load(),
		Phase:         phase,
		CyclesStarted: s.cyclesStarted.Load(),
	}
	s.snapMu.Lock()
	if s.last != nil {
		recCopy := *s.last
		snap.LastCycle = &recCopy
		snap.LastDuration = s.lastDur.Round(time.Millisecond).String()
	}
	s.snapMu.Unlock()
	return snap
}

func (s *Scheduler) setPhase(p string) {
	s.phase.Store(p)
}

func (s *Scheduler) storeLast(rec *types.CycleRecord, d time.Duration) {
	s.snapMu.Lock()
	s.last = rec
	s.lastDur = d
	s.snapMu.Unlock()
}
