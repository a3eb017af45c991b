package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/rehearsal-coach/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.QuotaBackendPostgres, cfg.QuotaBackend)
	assert.Equal(t, "Asia/Seoul", cfg.QuotaTimezone)
	assert.Equal(t, 60*time.Second, cfg.ChatTimeout)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("QUOTA_BACKEND", "redis")
	t.Setenv("FREE_TURN_LIMIT", "5")
	t.Setenv("CHAT_TIMEOUT", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, config.QuotaBackendRedis, cfg.QuotaBackend)
	assert.Equal(t, 5, cfg.Limit())
	assert.Equal(t, 30*time.Second, cfg.ChatTimeout)
}

func TestLimit_DefaultsWhenUnsetOrNonPositive(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 20, config.Config{}.Limit())
	assert.Equal(t, 20, config.Config{FreeTurnLimit: 0}.Limit())
	assert.Equal(t, 20, config.Config{FreeTurnLimit: -3}.Limit())
	assert.Equal(t, 7, config.Config{FreeTurnLimit: 7}.Limit())
}
