// Package postgres persists the daily usage counters in PostgreSQL.
package postgres

import (
	"context"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates a pgx connection pool from the provided DSN and returns it.
// The pool is configured with sane defaults for this application.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the usage table when it is absent. The composite
// primary key is what makes the ON CONFLICT upsert atomic.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	q := `CREATE TABLE IF NOT EXISTS usage_daily (
		day        TEXT NOT NULL,
		client_id  TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (day, client_id)
	)`
	_, err := pool.Exec(ctx, q)
	return err
}
