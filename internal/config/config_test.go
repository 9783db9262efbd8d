package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pricescope.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.InDelta(t, 0.9, cfg.Compare.Threshold, 0.001)
	assert.Equal(t, 20, cfg.Compare.BatchSize)
	assert.Equal(t, 24, cfg.Cache.SearchTTLHours)
	assert.Equal(t, 7, cfg.Cache.IdentifierTTLDays)
	assert.Equal(t, "*/30 * * * *", cfg.Monitor.Schedule)
	assert.NotEmpty(t, cfg.Compare.Floors, "default category floors are applied")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRICESCOPE_SERVER_PORT", "9191")
	t.Setenv("PRICESCOPE_RAKUTEN_APPLICATION_ID", "app-from-env")
	t.Setenv("PRICESCOPE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "app-from-env", cfg.Rakuten.ApplicationID)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "noisy", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
