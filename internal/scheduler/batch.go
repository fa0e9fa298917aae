package scheduler

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldwatch/internal/cache"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/rules"
	"fieldwatch/internal/types"
)

// alertGroup is the unit of parallel evaluation: all alerts sharing one
// coordinate bucket. Evaluating a group sequentially guarantees at most one
// upstream fetch per bucket per cycle.
type alertGroup struct {
	key      string
	lat, lon float64
	alerts   []*types.AlertDefinition
}

// evaluateAll runs the full pipeline for one cycle: load, resolve, group,
// evaluate in bounded-concurrency batches, and drain the dispatch pool.
// The returned error is fatal for the cycle only when loading definitions
// failed; every later failure is isolated per alert.
func (s *Scheduler) evaluateAll(ctx context.Context) (*cycleStats, error) {
	stats := &cycleStats{}
	s.setPhase(phaseLoading)
	defer s.setPhase(phaseIdle)

	defs, err := s.alerts.ListActive(ctx)
	if err != nil {
		return stats, err
	}
	stats.setLoaded(len(defs))
	metrics.CycleAlertsLoaded.Observe(float64(len(defs)))
	if len(defs) == 0 {
		s.logger.InfoContext(ctx, "no active alert definitions")
		return stats, nil
	}

	s.setPhase(phaseBatching)
	groups := s.resolveAndGroup(ctx, defs, stats)
	if len(groups) == 0 {
		return stats, nil
	}

	// Dispatch tasks outlive evaluation goroutines and, during shutdown,
	// the cycle context itself: they run on an uncancelable context until
	// the drain grace expires, so in-flight sends complete cleanly.
	poolCtx, poolCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer poolCancel()
	pool := newDispatchPool(s.cfg.DispatchWorkers, s.logger)
	pool.Start(poolCtx)

	s.setPhase(phaseEvaluating)
	for i := 0; i < len(groups); i += s.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && s.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchPause):
			}
			if ctx.Err() != nil {
				break
			}
		}

		end := min(i+s.cfg.BatchSize, len(groups))
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.EvalConcurrency)
		for _, grp := range groups[i:end] {
			g.Go(func() error {
				s.evaluateGroup(gCtx, grp, stats, pool)
				// Per-group failures are already recorded; never abort
				// the batch.
				return nil
			})
		}
		_ = g.Wait()
	}

	s.setPhase(phaseDispatching)
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DrainTimeout)
	defer cancel()
	if !pool.Drain(drainCtx) {
		s.logger.WarnContext(ctx, "dispatch pool drain timed out, aborting stragglers",
			"timeout", s.cfg.DrainTimeout.String(),
		)
		poolCancel()
	}

	return stats, nil
}

// resolveAndGroup validates each definition, resolves its location through
// the cache-then-repository path, and buckets evaluable definitions by
// coordinate key. Definitions that cannot be evaluated this cycle are
// counted and dropped here.
func (s *Scheduler) resolveAndGroup(ctx context.Context, defs []*types.AlertDefinition, stats *cycleStats) []*alertGroup {
	byKey := make(map[string]*alertGroup)

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			s.logger.ErrorContext(ctx, "invalid alert definition, skipping",
				"alert_id", def.ID,
				"name", def.Name,
				"error", err,
			)
			metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
			stats.addFailed(1)
			continue
		}

		loc, err := s.resolveLocation(ctx, def)
		if err != nil {
			code := types.CodeOf(err)
			s.logger.Log(ctx, code.LogLevel(), "location unavailable, skipping alert",
				"alert_id", def.ID,
				"location_id", def.LocationID,
				"error", err,
			)
			metrics.EvaluationsTotal.WithLabelValues("skipped").Inc()
			stats.addSkipped(1)
			continue
		}
		if !loc.HasCoordinates() {
			s.logger.DebugContext(ctx, "location has no coordinates, skipping alert",
				"alert_id", def.ID,
				"location_id", def.LocationID,
			)
			metrics.EvaluationsTotal.WithLabelValues("skipped").Inc()
			stats.addSkipped(1)
			continue
		}
		def.Location = loc

		key := cache.CoordinateKey(*loc.Latitude, *loc.Longitude)
		grp, ok := byKey[key]
		if !ok {
			grp = &alertGroup{key: key, lat: *loc.Latitude, lon: *loc.Longitude}
			byKey[key] = grp
		}
		grp.alerts = append(grp.alerts, def)
	}

	groups := make([]*alertGroup, 0, len(byKey))
	for _, grp := range byKey {
		groups = append(groups, grp)
	}
	// Deterministic order keeps batches stable across a cycle's retries and
	// makes behavior reproducible in tests.
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

// resolveLocation returns the location metadata for a definition, consulting
// the in-memory cache before the repository.
func (s *Scheduler) resolveLocation(ctx context.Context, def *types.AlertDefinition) (*types.LocationMetadata, error) {
	if loc, ok := s.locationCache.Get(def.LocationID); ok {
		metrics.LocationCacheLookups.WithLabelValues("hit").Inc()
		return loc, nil
	}
	metrics.LocationCacheLookups.WithLabelValues("miss").Inc()

	loc, err := s.locations.GetByID(ctx, def.LocationID)
	if err != nil {
		return nil, err
	}
	s.locationCache.Put(def.LocationID, loc)
	return loc, nil
}

// evaluateGroup fetches one observation for the group's coordinate bucket
// and evaluates each member against it.
func (s *Scheduler) evaluateGroup(ctx context.Context, grp *alertGroup, stats *cycleStats, pool *dispatchPool) {
	obs, err := s.observations.Resolve(ctx, grp.lat, grp.lon)
	if err != nil {
		code := types.CodeOf(err)
		s.logger.Log(ctx, code.LogLevel(), "observation unavailable for coordinate bucket",
			"bucket", grp.key,
			"alerts", len(grp.alerts),
			"code", string(code),
			"error", err,
		)
		if code.Transient() {
			stats.addSkipped(len(grp.alerts))
			for range grp.alerts {
				metrics.EvaluationsTotal.WithLabelValues("skipped").Inc()
			}
		} else {
			stats.addFailed(len(grp.alerts))
			for range grp.alerts {
				metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
			}
		}
		return
	}

	for _, def := range grp.alerts {
		if ctx.Err() != nil {
			return
		}
		s.evaluateOne(ctx, def, obs, stats, pool)
	}
}

// evaluateOne runs the per-alert pipeline: compare, record the check, then
// walk the persistence and notification gates. Confirmed triggers are
// submitted to the dispatch pool; this function never blocks on delivery.
func (s *Scheduler) evaluateOne(ctx context.Context, def *types.AlertDefinition, obs *types.Observation, stats *cycleStats, pool *dispatchPool) {
	value, ok := obs.Value(def.Metric)
	if !ok {
		s.logger.DebugContext(ctx, "metric absent from observation, skipping alert",
			"alert_id", def.ID,
			"metric", string(def.Metric),
			"stale", obs.Stale,
		)
		metrics.EvaluationsTotal.WithLabelValues("skipped").Inc()
		stats.addSkipped(1)
		return
	}

	met := rules.EvaluateDefinition(def, value)
	stats.addEvaluated(1)

	// The check record is written before the persistence consult so the
	// window always includes the present observation.
	check := &types.AlertCheckRecord{
		AlertID:      def.ID,
		Value:        value,
		ConditionMet: met,
		CheckedAt:    s.clock.Now(),
	}
	if err := s.checks.AppendCheck(ctx, check); err != nil {
		s.logger.ErrorContext(ctx, "failed to record check, skipping alert",
			"alert_id", def.ID,
			"error", err,
		)
		metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
		stats.addFailed(1)
		return
	}

	if !met {
		metrics.EvaluationsTotal.WithLabelValues("unmet").Inc()
		return
	}
	metrics.EvaluationsTotal.WithLabelValues("met").Inc()

	persistent, err := s.persistence.IsPersistent(ctx, def.ID, def.PersistenceHours)
	if err != nil {
		s.logger.ErrorContext(ctx, "persistence check failed, skipping alert",
			"alert_id", def.ID,
			"error", err,
		)
		stats.addFailed(1)
		return
	}
	if !persistent {
		s.logger.DebugContext(ctx, "condition met but not yet sustained",
			"alert_id", def.ID,
			"required_hours", def.PersistenceHours,
		)
		metrics.SuppressionsTotal.WithLabelValues("persistence_window").Inc()
		return
	}

	res, err := s.policy.ShouldNotify(ctx, def)
	if err != nil {
		s.logger.ErrorContext(ctx, "notification policy rejected alert",
			"alert_id", def.ID,
			"reason", res.Reason,
			"error", err,
		)
		stats.addFailed(1)
		return
	}
	if !res.Notify {
		s.logger.DebugContext(ctx, "notification suppressed",
			"alert_id", def.ID,
			"reason", res.Reason,
		)
		metrics.SuppressionsTotal.WithLabelValues(res.Reason).Inc()
		return
	}

	stats.addTriggered(1)
	metrics.TriggersTotal.Inc()
	s.logger.InfoContext(ctx, "alert triggered",
		"alert_id", def.ID,
		"name", def.Name,
		"metric", string(def.Metric),
		"value", value,
		"reason", res.Reason,
	)

	pool.Submit(func(taskCtx context.Context) {
		s.dispatchOne(taskCtx, def, value, stats)
	})
}
