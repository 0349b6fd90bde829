package config_test

import (
	"testing"
	"time"

	"github.com/ggoodman/transcripter-mcp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults apply with an empty environment", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultName, cfg.Name)
		assert.Equal(t, config.DefaultVersion, cfg.Version)
		assert.Equal(t, config.DefaultPort, cfg.Port)
		assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Empty(t, cfg.Redis.Addr)
		assert.False(t, cfg.Auth.Enabled())
		assert.Empty(t, cfg.Auth.Scopes())
		assert.Equal(t, 100, cfg.MessageBuffer)
	})

	t.Run("Environment overrides defaults", func(t *testing.T) {
		t.Setenv("TRANSCRIPTER_PORT", "4000")
		t.Setenv("TRANSCRIPTER_BACKEND_URL", "http://backend:3500")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("AUTH_HMAC_SECRET", "s3cret")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Port)
		assert.Equal(t, "http://backend:3500", cfg.BackendURL)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.True(t, cfg.Auth.Enabled())
		assert.Equal(t, ":4000", cfg.Addr(cfg.Port))
	})

	t.Run("JWKS requires issuer and audience", func(t *testing.T) {
		t.Setenv("AUTH_JWKS_URL", "http://idp/keys")
		_, err := config.Load()
		require.Error(t, err)

		t.Setenv("AUTH_ISSUER", "http://idp")
		_, err = config.Load()
		require.Error(t, err)

		t.Setenv("AUTH_AUDIENCE", "transcripter")
		_, err = config.Load()
		require.NoError(t, err)
	})

	t.Run("Required scopes split on commas and spaces", func(t *testing.T) {
		t.Setenv("AUTH_HMAC_SECRET", "s3cret")
		t.Setenv("AUTH_REQUIRED_SCOPES", "transcripts:read, news:read  admin")
		t.Setenv("TRANSCRIPTER_INSTRUCTIONS", "Search before summarizing.")
		t.Setenv("TRANSCRIPTER_MESSAGE_BUFFER", "8")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"transcripts:read", "news:read", "admin"}, cfg.Auth.Scopes())
		assert.Equal(t, "Search before summarizing.", cfg.Instructions)
		assert.Equal(t, 8, cfg.MessageBuffer)
	})

	t.Run("Rejects an empty message buffer", func(t *testing.T) {
		t.Setenv("TRANSCRIPTER_MESSAGE_BUFFER", "0")
		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("Rejects an out of range port", func(t *testing.T) {
		t.Setenv("TRANSCRIPTER_PORT", "70000")
		_, err := config.Load()
		require.Error(t, err)
	})
}
