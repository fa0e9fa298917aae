package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"fieldwatch/internal/dispatch"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/types"
)

// dispatchQueueBuffer bounds how many confirmed triggers may wait for a
// worker before Submit applies backpressure to evaluation goroutines.
const dispatchQueueBuffer = 64

// dispatchPool runs notification deliveries on a fixed set of workers so a
// slow transport never stalls evaluation.
type dispatchPool struct {
	workers int
	tasks   chan func(context.Context)
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newDispatchPool(workers int, logger *slog.Logger) *dispatchPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatchPool{
		workers: workers,
		tasks:   make(chan func(context.Context), dispatchQueueBuffer),
		logger:  logger,
	}
}

// Start launches the worker goroutines. Tasks receive ctx, so canceling it
// aborts work that is still in flight.
func (p *dispatchPool) Start(ctx context.Context) {
	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				metrics.DispatchQueueDepth.Dec()
				p.run(ctx, task)
			}
		}()
	}
}

func (p *dispatchPool) run(ctx context.Context, task func(context.Context)) {
	// A panicking task must not take its worker down with it.
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "dispatch task panicked", "panic", r)
		}
	}()
	task(ctx)
}

// Submit enqueues one delivery task. Must not be called after Drain.
func (p *dispatchPool) Submit(task func(context.Context)) {
	metrics.DispatchQueueDepth.Inc()
	p.tasks <- task
}

// Drain closes the queue and waits for queued and in-flight tasks to finish.
// Returns false when ctx expired before the workers went idle.
func (p *dispatchPool) Drain(ctx context.Context) bool {
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatchOne renders and delivers one confirmed trigger, then records the
// outcome. Runs on a dispatch pool worker off the evaluation path.
func (s *Scheduler) dispatchOne(ctx context.Context, def *types.AlertDefinition, value float64, stats *cycleStats) {
	start := s.clock.Now()
	ctx = types.WithAlertID(ctx, def.ID.String())

	msg := dispatch.Render(def, value, def.Location)

	var sent bool
	for _, ch := range def.Recipients.Channels() {
		recipients := def.Recipients.ByChannel(ch)
		if _, err := s.dispatcher.Send(ctx, ch, recipients, msg); err != nil {
			s.logger.ErrorContext(ctx, "notification delivery failed",
				"alert_id", def.ID,
				"channel", string(ch),
				"recipients", len(recipients),
				"error", err,
			)
			continue
		}
		sent = true
	}

	// The trigger row is written whatever the delivery outcome, so the audit
	// trail shows the firing even when every channel failed.
	trigger := &types.AlertTriggerRecord{
		AlertID:          def.ID,
		Value:            value,
		NotificationSent: sent,
		TriggeredAt:      s.clock.Now(),
	}
	if err := s.triggers.Append(ctx, trigger); err != nil {
		s.logger.ErrorContext(ctx, "failed to record trigger",
			"alert_id", def.ID,
			"error", err,
		)
	}

	metrics.DispatchDuration.Observe(s.clock.Now().Sub(start).Seconds())

	if !sent {
		// No cooldown and no last_triggered update: the alert stays armed
		// and the next cycle retries delivery.
		stats.addFailed(1)
		return
	}

	stats.addDispatched(1)
	s.cooldown.Set(def.ID)
	if err := s.alertState.SetLastTriggered(ctx, def.ID, trigger.TriggeredAt); err != nil {
		// The cooldown entry still dedupes near-term retriggers until a
		// later cycle persists the timestamp.
		s.logger.ErrorContext(ctx, "failed to update last_triggered",
			"alert_id", def.ID,
			"error", err,
		)
	}
}
