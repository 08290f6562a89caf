package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.RefreshConfig.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.RefreshConfig.MaxPollDuration)
	assert.True(t, cfg.RefreshConfig.BatchOperations)
	assert.True(t, cfg.RefreshConfig.ErroredRefresh)
	assert.Equal(t, time.Minute, cfg.FeedCacheTTL)
	assert.Equal(t, "development", cfg.CORSConfig.Environment)
	assert.Contains(t, cfg.CORSConfig.DevelopmentOrigins, "http://localhost:5173")
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("GLEAN_BACKEND_URL", "http://backend.internal:9000")
	t.Setenv("REFRESH_POLL_INTERVAL", "500ms")
	t.Setenv("REFRESH_MAX_POLL_DURATION", "0s")
	t.Setenv("REFRESH_BATCH_OPERATIONS", "false")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_RPM", "120")
	t.Setenv("DEV_CORS_ORIGINS", "http://localhost:4000,http://localhost:4001")

	cfg := NewConfig()

	assert.Equal(t, "http://backend.internal:9000", cfg.BackendURL)
	assert.Equal(t, 500*time.Millisecond, cfg.RefreshConfig.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.RefreshConfig.MaxPollDuration)
	assert.False(t, cfg.RefreshConfig.BatchOperations)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 120.0, cfg.RateLimitRequestsPerMinute)
	assert.Equal(t, []string{"http://localhost:4000", "http://localhost:4001"}, cfg.CORSConfig.DevelopmentOrigins)
}

func TestNewConfigInvalidEnvValuesFallBack(t *testing.T) {
	t.Setenv("REFRESH_POLL_INTERVAL", "not-a-duration")
	t.Setenv("RATE_LIMIT_BURST", "lots")

	cfg := NewConfig()

	assert.Equal(t, 2*time.Second, cfg.RefreshConfig.PollInterval)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg.BackendURL = ""
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.RefreshConfig.PollInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestNewServicesWiresContainer(t *testing.T) {
	cfg := NewConfig()

	services, err := NewServices(cfg)
	require.NoError(t, err)
	defer services.Close()

	coordinator, err := services.Container.GetCoordinator()
	require.NoError(t, err)
	assert.NotNil(t, coordinator)
	assert.False(t, coordinator.Polling())

	backendClient, err := services.Container.GetBackendClient()
	require.NoError(t, err)
	assert.NotNil(t, backendClient)

	handler, err := services.Container.GetHandler()
	require.NoError(t, err)
	assert.NotNil(t, handler)
}
