package redis_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisrepo "github.com/fairyhunter13/rehearsal-coach/internal/adapter/repo/redis"
	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

func newRepo(t *testing.T) (*redisrepo.UsageRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisrepo.NewUsageRepo(client), mr
}

func TestRead_MissingClientMeansZero(t *testing.T) {
	repo, _ := newRepo(t)

	snap, err := repo.Read(context.Background(), "2025-09-01", "client-1", 20)
	require.NoError(t, err)
	assert.Equal(t, domain.NewUsageSnapshot(20, 0, "2025-09-01"), snap)
}

func TestIncrementThenRead(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Increment(ctx, "2025-09-01", "client-1"))
	require.NoError(t, repo.Increment(ctx, "2025-09-01", "client-1"))

	snap, err := repo.Read(ctx, "2025-09-01", "client-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Used)
	assert.Equal(t, 18, snap.Remaining)
}

func TestIncrement_IsolatesDaysAndClients(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Increment(ctx, "2025-09-01", "client-1"))
	require.NoError(t, repo.Increment(ctx, "2025-09-02", "client-1"))
	require.NoError(t, repo.Increment(ctx, "2025-09-01", "client-2"))

	snap, err := repo.Read(ctx, "2025-09-01", "client-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Used)
}

func TestIncrement_SetsExpiryOnDayHash(t *testing.T) {
	repo, mr := newRepo(t)

	require.NoError(t, repo.Increment(context.Background(), "2025-09-01", "client-1"))
	assert.Positive(t, mr.TTL("usage_daily:2025-09-01"))
}

func TestIncrement_ConcurrentLosesNothing(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Increment(ctx, "2025-09-01", "client-1"))
		}()
	}
	wg.Wait()

	snap, err := repo.Read(ctx, "2025-09-01", "client-1", 100)
	require.NoError(t, err)
	assert.Equal(t, n, snap.Used)
}

func TestRead_ConnectionFailureWrapsStorageUnavailable(t *testing.T) {
	repo, mr := newRepo(t)
	mr.Close()

	_, err := repo.Read(context.Background(), "2025-09-01", "client-1", 20)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
