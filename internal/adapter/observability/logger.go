// Package observability provides logging, metrics, and tracing.
package observability

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/fairyhunter13/rehearsal-coach/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
// The instance id distinguishes replicas sharing one log sink.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
		slog.String("instance", uuid.NewString()),
	)
	return logger
}
