// Package db provides PostgreSQL-backed repository implementations for the
// alert engine. All repositories accept a DBTX interface that is satisfied by
// both *pgxpool.Pool (for normal queries) and pgx.Tx (for transactional
// execution), enabling clean transaction support.
package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldwatch/internal/config"
	"fieldwatch/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity. Transient startup failures are retried InitRetries
// times with a short backoff, so the engine survives a database that comes up
// a few seconds after it does.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse database URL", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create database pool", err)
	}

	var pingErr error
	for attempt := 1; attempt <= cfg.InitRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
		pingErr = pool.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			return pool, nil
		}
		logger.WarnContext(ctx, "database ping failed",
			"attempt", attempt,
			"max_attempts", cfg.InitRetries,
			"error", pingErr,
		)
		if attempt < cfg.InitRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	pool.Close()
	return nil, types.NewAppError(types.ErrCodeInternalDB, "database unreachable after retries", pingErr)
}
