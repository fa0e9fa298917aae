package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// CheckHistoryRepository provides data access for the alert_checks table, the
// append-only log of evaluation outcomes that the persistence tracker and the
// "once" re-arm logic read from.
type CheckHistoryRepository struct {
	db DBTX
}

// NewCheckHistoryRepository creates a new CheckHistoryRepository backed by
// the given database connection (pool or transaction).
func NewCheckHistoryRepository(db DBTX) *CheckHistoryRepository {
	return &CheckHistoryRepository{db: db}
}

// AppendCheck inserts one evaluation outcome. A zero record ID is assigned
// here; a zero CheckedAt falls back to the database clock.
func (r *CheckHistoryRepository) AppendCheck(ctx context.Context, rec *types.AlertCheckRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_checks (id, alert_id, value, condition_met, checked_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		rec.ID,
		rec.AlertID,
		rec.Value,
		rec.ConditionMet,
		nilIfZeroTime(rec.CheckedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append check record", err)
	}
	return nil
}

// RecentChecks returns the newest limit check records for the alert, most
// recent first. The persistence tracker depends on this ordering.
func (r *CheckHistoryRepository) RecentChecks(ctx context.Context, alertID uuid.UUID, limit int) ([]types.AlertCheckRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, alert_id, value, condition_met, checked_at
		 FROM alert_checks
		 WHERE alert_id = $1
		 ORDER BY checked_at DESC
		 LIMIT $2`,
		alertID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query check history", err)
	}
	defer rows.Close()

	var checks []types.AlertCheckRecord
	for rows.Next() {
		var c types.AlertCheckRecord
		if err := rows.Scan(
			&c.ID,
			&c.AlertID,
			&c.Value,
			&c.ConditionMet,
			&c.CheckedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan check record", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating check history", err)
	}

	return checks, nil
}

// HasUnmetCheckSince reports whether any check after the given instant
// observed the condition false. This is how a "once" alert re-arms: the
// condition must be seen to clear before it may fire again.
func (r *CheckHistoryRepository) HasUnmetCheckSince(ctx context.Context, alertID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM alert_checks
		   WHERE alert_id = $1 AND checked_at > $2 AND condition_met = FALSE
		 )`,
		alertID,
		since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to query reset state", err)
	}
	return exists, nil
}

// TriggerRepository provides data access for the alert_triggers table, the
// append-only log of alerts that actually fired.
type TriggerRepository struct {
	db DBTX
}

// NewTriggerRepository creates a new TriggerRepository backed by the given
// database connection (pool or transaction).
func NewTriggerRepository(db DBTX) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// Append inserts one trigger record. The record is written whether or not
// dispatch later succeeds; NotificationSent records the dispatch outcome.
func (r *TriggerRepository) Append(ctx context.Context, rec *types.AlertTriggerRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_triggers (id, alert_id, value, notification_sent, triggered_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		rec.ID,
		rec.AlertID,
		rec.Value,
		rec.NotificationSent,
		nilIfZeroTime(rec.TriggeredAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append trigger record", err)
	}
	return nil
}

// nilIfZeroTime lets COALESCE substitute NOW() for unset timestamps.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
