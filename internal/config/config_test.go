package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Alarm.Period)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL)
	assert.Equal(t, "PatientSyncAuthCookie", cfg.Auth.CookieName)
	assert.Equal(t, ":memory:", cfg.Journal.Path)
	assert.Equal(t, 100, cfg.WebSocket.BufferSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing section", func(c *Config) { c.Alarm = nil }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero http timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"read timeout not above ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero rate limit", func(c *Config) { c.WebSocket.RateLimit = 0 }},
		{"zero alarm period", func(c *Config) { c.Alarm.Period = 0 }},
		{"empty cookie name", func(c *Config) { c.Auth.CookieName = "" }},
		{"zero session ttl", func(c *Config) { c.Auth.SessionTTL = 0 }},
		{"empty journal path", func(c *Config) { c.Journal.Path = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("PATIENTSYNC_HTTP_PORT", "9090")
	t.Setenv("PATIENTSYNC_ALARM_PERIOD", "2s")
	t.Setenv("PATIENTSYNC_AUTH_SECRET", "s3cret")
	t.Setenv("PATIENTSYNC_AUTH_SECURE_COOKIE", "true")
	t.Setenv("PATIENTSYNC_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Alarm.Period)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.True(t, cfg.Auth.SecureCookie)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL, "unset keys keep defaults")
}

func TestLoad_BadEnvironmentValue(t *testing.T) {
	t.Setenv("PATIENTSYNC_ALARM_PERIOD", "soon")
	t.Setenv("PATIENTSYNC_HTTP_PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PATIENTSYNC_ALARM_PERIOD")
	assert.Contains(t, err.Error(), "PATIENTSYNC_HTTP_PORT")
}

func TestLoad_FileOverridesEnvironment(t *testing.T) {
	t.Setenv("PATIENTSYNC_HTTP_PORT", "9090")
	t.Setenv("PATIENTSYNC_LOG_FORMAT", "console")

	path := filepath.Join(t.TempDir(), "patientsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 7070
alarm:
  period: 500ms
journal:
  path: /var/lib/patientsync/journal.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Alarm.Period)
	assert.Equal(t, "/var/lib/patientsync/journal.db", cfg.Journal.Path)
	assert.Equal(t, "console", cfg.Log.Format, "keys absent from the file keep env values")
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patientsync.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auth": {"session_ttl": "1h", "cookie_name": "Other"}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "Other", cfg.Auth.CookieName)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("alarm: [unclosed"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("alarm:\n  period: 0s\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "alarm period must be positive")
}
