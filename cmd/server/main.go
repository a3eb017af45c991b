// Command server starts the rehearsal coach HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/ai/openai"
	httpserver "github.com/fairyhunter13/rehearsal-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/observability"
	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/repo/memory"
	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/repo/postgres"
	redisrepo "github.com/fairyhunter13/rehearsal-coach/internal/adapter/repo/redis"
	"github.com/fairyhunter13/rehearsal-coach/internal/app"
	"github.com/fairyhunter13/rehearsal-coach/internal/config"
	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
	"github.com/fairyhunter13/rehearsal-coach/internal/safety"
	"github.com/fairyhunter13/rehearsal-coach/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("failed to load prompts", slog.Any("error", err))
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		slog.Error("invalid quota timezone", slog.String("tz", cfg.QuotaTimezone), slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	usageRepo, storageCheck, closeStorage, err := buildUsageStore(ctx, cfg)
	if err != nil {
		slog.Error("storage connect failed", slog.String("backend", cfg.QuotaBackend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStorage()

	aiClient := openai.New(cfg)
	coach := usecase.NewCoachService(usageRepo, aiClient, safety.Sanitize, prompts, cfg.Limit(), loc)
	srv := httpserver.NewServer(cfg, coach, storageCheck)
	handler := app.BuildRouter(cfg, srv, aiClient.Model())

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		slog.Info("server listening",
			slog.Int("port", cfg.Port),
			slog.String("quota_backend", cfg.QuotaBackend),
			slog.Int("free_turn_limit", cfg.Limit()),
			slog.String("model", aiClient.Model()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// buildUsageStore selects the quota backend and returns the repo, a
// reachability probe for the health endpoint, and a close func.
func buildUsageStore(ctx context.Context, cfg config.Config) (domain.UsageRepository, func(context.Context) error, func(), error) {
	switch cfg.QuotaBackend {
	case config.QuotaBackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, nil, err
		}
		// Transient startup ordering (DB container still warming up) is the
		// common failure here, so ping with bounded backoff before giving up.
		ping := func() error { return pool.Ping(ctx) }
		expo := backoff.NewExponentialBackOff()
		expo.MaxElapsedTime = 30 * time.Second
		if err := backoff.Retry(ping, backoff.WithContext(expo, ctx)); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		check := func(c context.Context) error { return pool.Ping(c) }
		return postgres.NewUsageRepo(pool), check, pool.Close, nil

	case config.QuotaBackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		check := func(c context.Context) error { return client.Ping(c).Err() }
		return redisrepo.NewUsageRepo(client), check, func() { _ = client.Close() }, nil

	case config.QuotaBackendMemory:
		slog.Warn("using in-memory quota store; counters reset on restart")
		check := func(context.Context) error { return nil }
		return memory.NewUsageRepo(), check, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown quota backend %q", cfg.QuotaBackend)
	}
}
