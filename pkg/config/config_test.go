package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ESTIMATE_CACHE_TTL", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.Empty(t, cfg.Pricing.AddonTiming)
	require.Equal(t, 15*time.Minute, cfg.Estimates.CacheTTL)
	require.Equal(t, 10, cfg.Estimates.RateLimitPerMinute)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	require.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
