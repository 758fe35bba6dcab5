package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("SUPABASE_URL", "")

	cfg, err := fromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "gemini-2.5-flash-image", cfg.GeminiModel)
	assert.Equal(t, "3:4", cfg.AspectRatio)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.SupabaseEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_USE_TLS", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://md.studio, http://localhost:5173 ,")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30m")

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.RedisEnabled())
	assert.False(t, cfg.RedisUseTLS)
	assert.Equal(t, "cache.internal:6380", cfg.GetRedisAddr())
	assert.Equal(t, []string{"https://md.studio", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("SESSION_MAX_AGE", "forever")

	_, err := fromEnv()
	assert.ErrorContains(t, err, "SESSION_MAX_AGE")
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := fromEnv()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.validate(), "GEMINI_API_KEY")

	cfg.GeminiAPIKey = "k"
	cfg.SupabaseURL = "https://project.supabase.co"
	cfg.SupabaseServiceKey = ""
	assert.ErrorContains(t, cfg.validate(), "SUPABASE_SERVICE_KEY")

	cfg.SupabaseServiceKey = "service"
	assert.NoError(t, cfg.validate())
	assert.True(t, cfg.SupabaseEnabled())
}
