// Package redis implements the usage counter on Redis for deployments
// without a relational store. Each day gets one hash keyed by client id;
// HIncrBy is the atomic upsert.
package redis

import (
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// keyTTL keeps day hashes around long enough to survive timezone skew while
// still expiring old days without a cleanup job.
const keyTTL = 48 * time.Hour

// UsageRepo stores daily counters in per-day Redis hashes.
type UsageRepo struct{ Client *goredis.Client }

// NewUsageRepo constructs a UsageRepo with the given client.
func NewUsageRepo(c *goredis.Client) *UsageRepo { return &UsageRepo{Client: c} }

var _ domain.UsageRepository = (*UsageRepo)(nil)

func dayHashKey(dayKey string) string { return "usage_daily:" + dayKey }

// Read returns the committed usage snapshot; a missing field means zero.
func (r *UsageRepo) Read(ctx domain.Context, dayKey, clientID string, limit int) (domain.UsageSnapshot, error) {
	used, err := r.Client.HGet(ctx, dayHashKey(dayKey), clientID).Int()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.NewUsageSnapshot(limit, 0, dayKey), nil
		}
		return domain.UsageSnapshot{}, fmt.Errorf("op=usage.read: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return domain.NewUsageSnapshot(limit, used, dayKey), nil
}

// Increment bumps the counter atomically via HIncrBy and refreshes the TTL.
func (r *UsageRepo) Increment(ctx domain.Context, dayKey, clientID string) error {
	key := dayHashKey(dayKey)
	if err := r.Client.HIncrBy(ctx, key, clientID, 1).Err(); err != nil {
		return fmt.Errorf("op=usage.increment: %w: %w", domain.ErrStorageUnavailable, err)
	}
	// TTL refresh failing leaves a stale key behind, not a lost count.
	_ = r.Client.Expire(ctx, key, keyTTL).Err()
	return nil
}
