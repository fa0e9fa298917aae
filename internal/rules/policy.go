package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// TriggerHistory answers whether the condition has been observed as not met
// since a given time. Used by the once frequency policy to decide whether an
// alert has reset and may fire again. Implemented by the check record
// repository.
type TriggerHistory interface {
	HasUnmetCheckSince(ctx context.Context, alertID uuid.UUID, since time.Time) (bool, error)
}

// CooldownGate reports whether an alert is inside its short-window dispatch
// suppression. Implemented by the in-memory cooldown tracker.
type CooldownGate interface {
	Active(alertID uuid.UUID) bool
}

// PolicyResult is the outcome of a notification policy check. Reason is a
// short machine-greppable explanation carried into logs.
type PolicyResult struct {
	Notify bool
	Reason string
}

// NotificationPolicy gates dispatch for confirmed triggers. It is consulted
// only after a condition is met and persistent; it layers the in-memory
// cooldown window under the alert's own frequency policy.
//
// History read failures suppress rather than notify. A missed notification
// is recoverable on the next cycle; a storm caused by failing open is not.
type NotificationPolicy struct {
	clock    types.Clock
	history  TriggerHistory
	cooldown CooldownGate
	logger   *slog.Logger
}

// NewNotificationPolicy creates a NotificationPolicy. clock, history, and
// cooldown are required; a nil logger defaults to slog.Default().
func NewNotificationPolicy(clock types.Clock, history TriggerHistory, cooldown CooldownGate, logger *slog.Logger) *NotificationPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationPolicy{
		clock:    clock,
		history:  history,
		cooldown: cooldown,
		logger:   logger,
	}
}

// ShouldNotify decides whether a confirmed trigger may dispatch.
//
// Decision logic (in order of precedence):
//  1. In-memory cooldown active -> suppress, regardless of frequency policy.
//     This guards against rapid re-entry and overlapping cycles.
//  2. No prior trigger -> notify.
//  3. Frequency policy:
//     once   -> notify only if a condition-not-met check was recorded after
//     the last trigger (reset-based re-arm);
//     hourly -> notify if at least one hour has elapsed since the last trigger;
//     daily  -> notify if at least 24 hours have elapsed.
func (p *NotificationPolicy) ShouldNotify(ctx context.Context, alert *types.AlertDefinition) (PolicyResult, error) {
	if p.cooldown.Active(alert.ID) {
		return PolicyResult{Notify: false, Reason: "cooldown_active"}, nil
	}

	if alert.LastTriggered == nil {
		return PolicyResult{Notify: true, Reason: "first_trigger"}, nil
	}

	switch alert.Frequency {
	case types.FrequencyOnce:
		reset, err := p.history.HasUnmetCheckSince(ctx, alert.ID, *alert.LastTriggered)
		if err != nil {
			p.logger.WarnContext(ctx, "reset lookup failed, suppressing notification",
				"alert_id", alert.ID,
				"error", err,
			)
			return PolicyResult{Notify: false, Reason: "reset_lookup_failed"}, nil
		}
		if !reset {
			return PolicyResult{Notify: false, Reason: "awaiting_reset"}, nil
		}
		return PolicyResult{Notify: true, Reason: "retrigger_after_reset"}, nil

	case types.FrequencyHourly, types.FrequencyDaily:
		elapsed := p.clock.Now().Sub(*alert.LastTriggered)
		if elapsed < alert.Frequency.MinInterval() {
			return PolicyResult{Notify: false, Reason: "frequency_interval_not_elapsed"}, nil
		}
		return PolicyResult{Notify: true, Reason: "frequency_interval_elapsed"}, nil

	default:
		return PolicyResult{Notify: false, Reason: "invalid_frequency"},
			types.NewAppError(types.ErrCodeConfigInvalidFrequency, string(alert.Frequency), nil)
	}
}
