package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1440, cfg.Auth.AccessTokenTTLMinutes)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "tickets", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.App.Addr())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 0.0001)
	assert.Zero(t, cfg.App.RequestTimeout())
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "one")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
