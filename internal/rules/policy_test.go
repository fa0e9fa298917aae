package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// mockClock provides a controllable clock for testing.
type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

// mockTriggerHistory is an in-memory mock of TriggerHistory.
type mockTriggerHistory struct {
	unmetSince bool
	err        error
	calls      int
	lastSince  time.Time
}

func (m *mockTriggerHistory) HasUnmetCheckSince(_ context.Context, _ uuid.UUID, since time.Time) (bool, error) {
	m.calls++
	m.lastSince = since
	if m.err != nil {
		return false, m.err
	}
	return m.unmetSince, nil
}

// mockCooldownGate is a switchable CooldownGate.
type mockCooldownGate struct {
	active bool
}

func (m *mockCooldownGate) Active(_ uuid.UUID) bool { return m.active }

func timePtr(t time.Time) *time.Time { return &t }

func policyAlert(freq types.AlertFrequency, lastTriggered *time.Time) *types.AlertDefinition {
	return &types.AlertDefinition{
		ID:            uuid.New(),
		Frequency:     freq,
		LastTriggered: lastTriggered,
	}
}

func TestShouldNotifyFirstTrigger(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	policy := NewNotificationPolicy(clock, &mockTriggerHistory{}, &mockCooldownGate{}, discardLogger())

	res, err := policy.ShouldNotify(context.Background(), policyAlert(types.FrequencyOnce, nil))
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if !res.Notify {
		t.Errorf("ShouldNotify = %+v for never-triggered alert, want notify", res)
	}
}

// TestShouldNotifyCooldownOverridesFrequency verifies the in-memory cooldown
// suppresses dispatch even when the frequency policy alone would allow it.
func TestShouldNotifyCooldownOverridesFrequency(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	policy := NewNotificationPolicy(clock, &mockTriggerHistory{}, &mockCooldownGate{active: true}, discardLogger())

	// Last triggered two days ago: hourly policy alone would notify.
	last := clock.now.Add(-48 * time.Hour)
	res, err := policy.ShouldNotify(context.Background(), policyAlert(types.FrequencyHourly, timePtr(last)))
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if res.Notify {
		t.Error("ShouldNotify = notify while cooldown active, want suppress")
	}
	if res.Reason != "cooldown_active" {
		t.Errorf("Reason = %q, want cooldown_active", res.Reason)
	}
}

// TestShouldNotifyHourlyBoundary pins the hourly gate: suppressed at 59
// minutes after a trigger, allowed at 61.
func TestShouldNotifyHourlyBoundary(t *testing.T) {
	trigger := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := policyAlert(types.FrequencyHourly, timePtr(trigger))

	clock := &mockClock{now: trigger.Add(59 * time.Minute)}
	policy := NewNotificationPolicy(clock, &mockTriggerHistory{}, &mockCooldownGate{}, discardLogger())

	res, err := policy.ShouldNotify(context.Background(), alert)
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if res.Notify {
		t.Error("hourly alert notified 59 minutes after trigger")
	}

	clock.now = trigger.Add(61 * time.Minute)
	res, err = policy.ShouldNotify(context.Background(), alert)
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if !res.Notify {
		t.Error("hourly alert suppressed 61 minutes after trigger")
	}
}

func TestShouldNotifyDailyBoundary(t *testing.T) {
	trigger := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	alert := policyAlert(types.FrequencyDaily, timePtr(trigger))

	clock := &mockClock{now: trigger.Add(23 * time.Hour)}
	policy := NewNotificationPolicy(clock, &mockTriggerHistory{}, &mockCooldownGate{}, discardLogger())

	res, _ := policy.ShouldNotify(context.Background(), alert)
	if res.Notify {
		t.Error("daily alert notified 23 hours after trigger")
	}

	clock.now = trigger.Add(25 * time.Hour)
	res, _ = policy.ShouldNotify(context.Background(), alert)
	if !res.Notify {
		t.Error("daily alert suppressed 25 hours after trigger")
	}
}

// TestShouldNotifyOnceRequiresReset verifies the once policy stays silent
// until the condition has been observed as not met since the last trigger,
// then re-arms.
func TestShouldNotifyOnceRequiresReset(t *testing.T) {
	trigger := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := policyAlert(types.FrequencyOnce, timePtr(trigger))
	clock := &mockClock{now: trigger.Add(6 * time.Hour)}

	history := &mockTriggerHistory{unmetSince: false}
	policy := NewNotificationPolicy(clock, history, &mockCooldownGate{}, discardLogger())

	res, err := policy.ShouldNotify(context.Background(), alert)
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if res.Notify {
		t.Error("once alert re-notified without an observed reset")
	}
	if res.Reason != "awaiting_reset" {
		t.Errorf("Reason = %q, want awaiting_reset", res.Reason)
	}
	if !history.lastSince.Equal(trigger) {
		t.Errorf("reset lookup since = %v, want last trigger %v", history.lastSince, trigger)
	}

	// A not-met check has since been recorded: the alert re-arms.
	history.unmetSince = true
	res, err = policy.ShouldNotify(context.Background(), alert)
	if err != nil {
		t.Fatalf("ShouldNotify returned error: %v", err)
	}
	if !res.Notify {
		t.Error("once alert stayed suppressed after an observed reset")
	}
}

// TestShouldNotifyFailsClosedOnHistoryError verifies a reset-lookup failure
// suppresses instead of notifying.
func TestShouldNotifyFailsClosedOnHistoryError(t *testing.T) {
	trigger := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := policyAlert(types.FrequencyOnce, timePtr(trigger))
	clock := &mockClock{now: trigger.Add(6 * time.Hour)}

	history := &mockTriggerHistory{err: errors.New("connection reset")}
	policy := NewNotificationPolicy(clock, history, &mockCooldownGate{}, discardLogger())

	res, err := policy.ShouldNotify(context.Background(), alert)
	if err != nil {
		t.Fatalf("ShouldNotify should swallow history errors, got %v", err)
	}
	if res.Notify {
		t.Error("ShouldNotify = notify on history error, want fail-closed suppress")
	}
}

func TestShouldNotifyInvalidFrequency(t *testing.T) {
	trigger := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := policyAlert(types.AlertFrequency("weekly"), timePtr(trigger))
	clock := &mockClock{now: trigger.Add(time.Hour)}

	policy := NewNotificationPolicy(clock, &mockTriggerHistory{}, &mockCooldownGate{}, discardLogger())

	res, err := policy.ShouldNotify(context.Background(), alert)
	if res.Notify {
		t.Error("ShouldNotify = notify for invalid frequency")
	}
	if err == nil {
		t.Fatal("ShouldNotify should surface a config error for invalid frequency")
	}
	if types.CodeOf(err) != types.ErrCodeConfigInvalidFrequency {
		t.Errorf("error code = %s, want %s", types.CodeOf(err), types.ErrCodeConfigInvalidFrequency)
	}
}
