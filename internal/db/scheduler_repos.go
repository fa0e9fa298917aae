package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// CycleLeaseRepository provides single-runner leasing via the cycle_leases
// table. When several engine replicas share a database, only the replica
// holding the lease runs an evaluation cycle; the others sit out.
type CycleLeaseRepository struct {
	db DBTX
}

// NewCycleLeaseRepository creates a new CycleLeaseRepository backed by the
// given database connection (pool or transaction).
func NewCycleLeaseRepository(db DBTX) *CycleLeaseRepository {
	return &CycleLeaseRepository{db: db}
}

// Acquire attempts to insert a lease row. Returns true if acquired, false if
// the lease already exists and has not expired.
//
// SQL pattern:
//
//	INSERT INTO cycle_leases (name, holder_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (name) DO UPDATE
//	  SET holder_id = EXCLUDED.holder_id,
//	      locked_at = EXCLUDED.locked_at,
//	      expires_at = EXCLUDED.expires_at
//	  WHERE cycle_leases.expires_at < $3
//
// The locked_at ($3) and expires_at ($4) are computed as time.Time values in
// Go to avoid PostgreSQL interval parsing incompatibilities with Go's
// duration format.
//
// If the existing row has expired (expires_at < current time), the UPDATE
// succeeds and the caller acquires the lease. If the row is still active,
// the ON CONFLICT WHERE clause prevents the update, and zero rows are
// affected.
func (r *CycleLeaseRepository) Acquire(ctx context.Context, name string, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO cycle_leases (name, holder_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE
		   SET holder_id = EXCLUDED.holder_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE cycle_leases.expires_at < $3`,
		name,
		holderID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire cycle lease", err)
	}

	// RowsAffected is 1 if the INSERT succeeded (new row) or if the
	// ON CONFLICT UPDATE matched (expired lease reclaimed). It is 0 if
	// the lease exists and has not expired (another replica holds it).
	return tag.RowsAffected() > 0, nil
}

// CycleHistoryRepository provides data access for the cycle_history table.
// Cycle history entries track each evaluation cycle for operational
// visibility and debugging.
type CycleHistoryRepository struct {
	db DBTX
}

// NewCycleHistoryRepository creates a new CycleHistoryRepository backed by
// the given database connection (pool or transaction).
func NewCycleHistoryRepository(db DBTX) *CycleHistoryRepository {
	return &CycleHistoryRepository{db: db}
}

// Start inserts a new cycle_history row with status 'running' and returns
// its ID. The caller uses this ID to later call Finish with the outcome.
func (r *CycleHistoryRepository) Start(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO cycle_history (id, started_at, status)
		 VALUES ($1, NOW(), 'running')`,
		id,
	)
	if err != nil {
		return uuid.Nil, types.NewAppError(types.ErrCodeInternalDB, "failed to start cycle history entry", err)
	}
	return id, nil
}

// Finish updates the cycle_history row with the final status and counters.
// The status should be 'completed' or 'failed'.
func (r *CycleHistoryRepository) Finish(ctx context.Context, rec *types.CycleRecord) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cycle_history
		 SET finished_at = NOW(), status = $2,
		     loaded = $3, evaluated = $4, triggered = $5,
		     dispatched = $6, skipped = $7, failed = $8
		 WHERE id = $1`,
		rec.ID,
		rec.Status,
		rec.Loaded,
		rec.Evaluated,
		rec.Triggered,
		rec.Dispatched,
		rec.Skipped,
		rec.Failed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish cycle history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "cycle history entry not found", nil)
	}
	return nil
}
