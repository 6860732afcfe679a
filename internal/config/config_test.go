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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	path := writeConfig(t, `
server:
  port: "9090"
log:
  level: info
  format: pretty
timer:
  reason_ttl: 48h
integrity:
  recheck_interval: 30s
proctor:
  max_violations: 5
  min_eye_ratio: 0.24
  max_eye_ratio: 0.45
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 48*time.Hour, TTLDuration(cfg.Timer.ReasonTTL, time.Hour))
	assert.Equal(t, 5, cfg.Proctor.MaxViolations)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "log:\n  format: xml\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "timer:\n  ttl: forever\n"))
	assert.ErrorContains(t, err, "timer.ttl")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 5*time.Second, TTLDuration("5s", time.Minute))
}
