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

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: s3cret\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3002, cfg.Server.Port)
	assert.Equal(t, "amqp", cfg.Broker.Driver)
	assert.Equal(t, "task_events", cfg.Broker.Exchange)
	assert.Equal(t, "notification_service", cfg.Broker.Queue)
	assert.Equal(t, time.Hour, cfg.Presence.TTL)
	assert.Equal(t, 50, cfg.Offline.MaxEntries)
	assert.Equal(t, 168*time.Hour, cfg.Offline.TTL)
	assert.True(t, cfg.Offline.StoreOnAbsent)
	assert.Equal(t, float64(20), cfg.Realtime.EventsPerSecond)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
jwt:
  secret: from-file
broker:
  driver: redis
  reconnect_max_interval: 10s
presence:
  store: memory
offline:
  store: postgres
  max_entries: 20
realtime:
  allowed_origins:
    - https://app.example.com
`)
	t.Setenv("NOTIFIER_JWT_SECRET", "from-env")
	t.Setenv("NOTIFIER_OFFLINE_TTL", "48h")
	t.Setenv("NOTIFIER_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "redis", cfg.Broker.Driver)
	assert.Equal(t, 10*time.Second, cfg.Broker.ReconnectMaxInterval)
	assert.Equal(t, "memory", cfg.Presence.Store)
	assert.Equal(t, "postgres", cfg.Offline.Store)
	assert.Equal(t, 20, cfg.Offline.MaxEntries)
	assert.Equal(t, 48*time.Hour, cfg.Offline.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Realtime.AllowedOrigins)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing secret", "server:\n  port: 8080\n", "jwt.secret is required"},
		{"unknown broker", "jwt:\n  secret: x\nbroker:\n  driver: kafka\n", "broker.driver"},
		{"unknown store", "jwt:\n  secret: x\noffline:\n  store: s3\n", "offline.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
