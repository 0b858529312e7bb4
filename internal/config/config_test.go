package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 15*time.Minute, cfg.PaymentTimeout)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.SweepEnabled)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://groupbuy.example.com, https://admin.example.com")
	t.Setenv("PAYMENT_TIMEOUT", "30m")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	t.Setenv("SWEEP_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://groupbuy.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.PaymentTimeout)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, "s3cret", cfg.AdminJWTSecret)
	assert.False(t, cfg.SweepEnabled)
}

func TestBadBoolFallsBack(t *testing.T) {
	t.Setenv("SWEEP_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.SweepEnabled)
}

func TestBadDurationFallsBack(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "soon")
	t.Setenv("SWEEP_INTERVAL", "-5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.PaymentTimeout)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}
