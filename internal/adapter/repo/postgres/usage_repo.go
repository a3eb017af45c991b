package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// PgxPool is the minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UsageRepo persists and loads daily usage counters from PostgreSQL.
type UsageRepo struct{ Pool PgxPool }

// NewUsageRepo constructs a UsageRepo with the given pool.
func NewUsageRepo(p PgxPool) *UsageRepo { return &UsageRepo{Pool: p} }

var _ domain.UsageRepository = (*UsageRepo)(nil)

// Read returns the committed usage snapshot for (dayKey, clientID).
// No row means zero used; it never modifies the counter.
func (r *UsageRepo) Read(ctx domain.Context, dayKey, clientID string, limit int) (domain.UsageSnapshot, error) {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.Read")
	defer span.End()

	q := `SELECT count FROM usage_daily WHERE day=$1 AND client_id=$2`
	var used int
	err := r.Pool.QueryRow(ctx, q, dayKey, clientID).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewUsageSnapshot(limit, 0, dayKey), nil
		}
		return domain.UsageSnapshot{}, fmt.Errorf("op=usage.read: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return domain.NewUsageSnapshot(limit, used, dayKey), nil
}

// Increment bumps the counter by one in a single atomic upsert. Two
// concurrent turns for the same client must not both observe count=0 and
// both write count=1; the conflict clause guarantees that at the storage
// layer.
func (r *UsageRepo) Increment(ctx domain.Context, dayKey, clientID string) error {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.Increment")
	defer span.End()

	q := `INSERT INTO usage_daily (day, client_id, count, updated_at)
	VALUES ($1, $2, 1, $3)
	ON CONFLICT (day, client_id)
	DO UPDATE SET count = usage_daily.count + 1, updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, dayKey, clientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=usage.increment: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}
