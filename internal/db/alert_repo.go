package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fieldwatch/internal/types"
)

// AlertRepository provides data access for the alerts table.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// alertColumns defines the standard set of columns selected for alert
// queries. Scan order must match scanAlert.
const alertColumns = `id, location_id, name, metric, operator, frequency,
	threshold, threshold_high, persistence_hours, active, recipients,
	last_triggered, created_at, updated_at`

// scanAlert scans a single alert row into a types.AlertDefinition. The
// columns must match the order defined in alertColumns.
func scanAlert(row pgx.Row) (*types.AlertDefinition, error) {
	var def types.AlertDefinition
	var (
		metric    string
		operator  string
		frequency string
	)

	err := row.Scan(
		&def.ID,
		&def.LocationID,
		&def.Name,
		&metric,
		&operator,
		&frequency,
		&def.Threshold,
		&def.ThresholdHigh,
		&def.PersistenceHours,
		&def.Active,
		&def.Recipients,
		&def.LastTriggered,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Metric = types.MetricKind(metric)
	def.Operator = types.ConditionOperator(operator)
	def.Frequency = types.AlertFrequency(frequency)
	return &def, nil
}

// ListActive returns every active alert definition, ordered by location so
// co-located alerts arrive adjacent for batching. Inactive definitions are
// filtered in SQL; the scheduler never sees them.
func (r *AlertRepository) ListActive(ctx context.Context) ([]*types.AlertDefinition, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE active = TRUE
		 ORDER BY location_id, id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active alerts", err)
	}
	defer rows.Close()

	var defs []*types.AlertDefinition
	for rows.Next() {
		def, err := scanAlert(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert definition", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating active alerts", err)
	}

	return defs, nil
}

// SetLastTriggered records the moment an alert last fired. Called only after
// at least one notification channel accepted the message.
func (r *AlertRepository) SetLastTriggered(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts
		 SET last_triggered = $2, updated_at = NOW()
		 WHERE id = $1`,
		alertID,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last_triggered", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "alert not found for last_triggered update", nil)
	}
	return nil
}

// LocationRepository provides data access for the locations table.
type LocationRepository struct {
	db DBTX
}

// NewLocationRepository creates a new LocationRepository backed by the given
// database connection (pool or transaction).
func NewLocationRepository(db DBTX) *LocationRepository {
	return &LocationRepository{db: db}
}

// GetByID fetches location metadata by ID. A missing row maps to the same
// error code as missing coordinates: either way the alert referencing it
// cannot be placed on the map and is skipped.
func (r *LocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.LocationMetadata, error) {
	var loc types.LocationMetadata
	err := r.db.QueryRow(ctx,
		`SELECT id, display_name, latitude, longitude
		 FROM locations
		 WHERE id = $1`,
		id,
	).Scan(
		&loc.ID,
		&loc.DisplayName,
		&loc.Latitude,
		&loc.Longitude,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeDataMissingCoordinates, "location not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch location", err)
	}
	return &loc, nil
}
