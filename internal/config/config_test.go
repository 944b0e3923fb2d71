// ABOUTME: Tests for YAML config loading, env expansion, and duration parsing
// ABOUTME: Covers validation failures for missing required fields

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
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "/tmp/pulse.db"

auth:
  jwt_secret: "super-secret"

events:
  heartbeat_interval: "30s"
  poll_interval: "10s"
  max_connection_age: "1h"

webhooks:
  user_agent: "pulse-gateway/1.0"
  timeout: "10s"
  callback_secret: "callback-secret"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/pulse.db", cfg.Database.Path)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Events.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Events.PollInterval)
	assert.Equal(t, time.Hour, cfg.Events.MaxConnectionAge)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout)
	assert.Equal(t, "callback-secret", cfg.Webhooks.CallbackSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("PULSE_TEST_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/pulse.db"
auth:
  jwt_secret: "${PULSE_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingDurationsStayZero(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/pulse.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Events.HeartbeatInterval, "components fall back to their defaults")
	assert.Zero(t, cfg.Webhooks.Timeout)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/pulse.db"
auth:
  jwt_secret: "secret"
events:
  poll_interval: "every so often"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing http addr",
			content: `
database:
  path: "/tmp/pulse.db"
auth:
  jwt_secret: "secret"
`,
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "localhost:8080"
auth:
  jwt_secret: "secret"
`,
		},
		{
			name: "missing jwt secret",
			content: `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/pulse.db"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/gateway.yaml")
	assert.Error(t, err)
}
