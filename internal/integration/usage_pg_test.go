package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/repo/postgres"
)

// Requires a local Docker daemon; enable with INTEGRATION=1.
func TestUsagePostgres_ConcurrentUpsert(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "coach"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithStartupTimeout(90 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: pgReq, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := "postgres://postgres:postgres@" + host + ":" + port.Port() + "/coach?sslmode=disable"

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.Eventually(t, func() bool { return pool.Ping(ctx) == nil }, 30*time.Second, 1*time.Second)
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	repo := postgres.NewUsageRepo(pool)

	// Hammer one (day, client) key from many goroutines; the upsert must
	// not lose a single increment.
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

	// Other keys stay untouched.
	other, err := repo.Read(ctx, "2025-09-02", "client-1", 100)
	require.NoError(t, err)
	assert.Zero(t, other.Used)
}
