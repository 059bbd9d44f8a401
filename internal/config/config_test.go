package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 864000, cfg.HubLeaseSeconds)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.True(t, cfg.MirrorWebhooks)
	assert.False(t, cfg.VerifyTopics)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, "@every 24h", cfg.RenewSchedule)
	assert.Error(t, cfg.RequireBaseURL())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://relay.example.com/")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("DATABASE_URL", "file:relay.db")
	t.Setenv("MIRROR_WEBHOOKS", "false")
	t.Setenv("VERIFY_TOPICS", "true")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://relay.example.com", cfg.BaseURL)
	assert.NoError(t, cfg.RequireBaseURL())
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.False(t, cfg.MirrorWebhooks)
	assert.True(t, cfg.VerifyTopics)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2, cfg.RedisOptions().DB)
	assert.Equal(t, 2, cfg.AsynqRedis().DB)
}

func TestLoadRejectsBadBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, "mongo")

	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetupLogging("debug", "console")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetupLogging("nonsense", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
