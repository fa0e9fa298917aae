package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// CheckHistory provides read access to the append-only evaluation log.
// Implemented by the check record repository. Records are returned newest
// first.
type CheckHistory interface {
	RecentChecks(ctx context.Context, alertID uuid.UUID, limit int) ([]types.AlertCheckRecord, error)
}

// PersistenceTracker decides whether a condition breach has been sustained
// long enough to count as a real trigger. It reads the most recent check
// records for an alert and requires every record in a fully populated window
// to have the condition met. Insufficient history is never optimistically
// true: a new alert must accumulate its window before it can fire.
type PersistenceTracker struct {
	history CheckHistory
	logger  *slog.Logger
}

// NewPersistenceTracker creates a PersistenceTracker reading from the given
// history. A nil logger defaults to slog.Default().
func NewPersistenceTracker(history CheckHistory, logger *slog.Logger) *PersistenceTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistenceTracker{history: history, logger: logger}
}

// IsPersistent reports whether the alert's condition has held across the
// most recent requiredHours checks. requiredHours of 0 or 1 means immediate:
// the current check alone is sufficient and no history is consulted.
//
// The caller appends the current cycle's check record before consulting, so
// the window always includes the present observation.
func (t *PersistenceTracker) IsPersistent(ctx context.Context, alertID uuid.UUID, requiredHours int) (bool, error) {
	if requiredHours <= 1 {
		return true, nil
	}

	records, err := t.history.RecentChecks(ctx, alertID, requiredHours)
	if err != nil {
		return false, fmt.Errorf("reading check history for %s: %w", alertID, err)
	}

	if len(records) < requiredHours {
		t.logger.DebugContext(ctx, "persistence window not yet populated",
			"alert_id", alertID,
			"have", len(records),
			"need", requiredHours,
		)
		return false, nil
	}

	for _, rec := range records {
		if !rec.ConditionMet {
			return false, nil
		}
	}
	return true, nil
}
