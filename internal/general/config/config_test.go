package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  user: safetrip
  password: secret
  name: safetrip
rabbitmq:
  user: guest
  password: guest
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.WebSocket.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "safetrip:hazards", cfg.Redis.GeoKey)
	assert.Equal(t, 10*time.Minute, cfg.Weather.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.ForecastInterval)
	assert.Equal(t, 5.0, cfg.Alerts.RainThresholdMM)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.StaleAfter)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.CollapseWindow)
	assert.NotEmpty(t, cfg.JWT.SecretKey, "a random secret is generated when absent")
}

func TestLoadFromFileRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
database:
  user: safetrip
`)
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password is required")
}

func TestLoadFromFileRejectsBadWatchpoints(t *testing.T) {
	path := writeConfig(t, `
database:
  user: safetrip
  password: secret
  name: safetrip
rabbitmq:
  user: guest
  password: guest
weather:
  watchpoints:
    - region: ""
      latitude: 120
      longitude: 3.4
`)
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchpoints[0]")
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
