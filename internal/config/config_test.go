package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesDurationStrings(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  name: node-a
  executor_threads: 4
  polling_interval: 15s
  heartbeat_interval: 2m

store:
  driver: memory
  dsn: ""

metrics:
  enabled: false
  port: 9091
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.Scheduler.Name)
	assert.Equal(t, 4, cfg.Scheduler.ExecutorThreads)
	assert.Equal(t, 15*time.Second, time.Duration(cfg.Scheduler.PollingInterval))
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Scheduler.HeartbeatInterval))
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9091, cfg.Metrics.Port)
}

func TestLoadAppliesDefaultsOverPartialFile(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: sqlite
  dsn: /tmp/scheduler.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Scheduler.ExecutorThreads)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Scheduler.PollingInterval))
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Scheduler.HeartbeatInterval))
	assert.Equal(t, "/tmp/scheduler.db", cfg.Store.DSN)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  polling_interval: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
