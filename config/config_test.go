package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/pulselink/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 15*time.Second, cfg.Heartbeat.LivenessWindow)
	assert.Equal(t, "fixed", cfg.Reconnect.Policy)
	assert.Equal(t, time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Client.URL)
	assert.Equal(t, ":8080", cfg.Acceptor.Listen)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
codec = "cbor"

[client]
url = "ws://collector:9000/ws"
id = "sensor-gw-1"

[heartbeat]
interval = "2s"
liveness_window = "6s"

[reconnect]
policy = "backoff"
initial = "250ms"
max = "10s"
jitter = "50ms"

[bus]
kind = "nats"
url = "nats://localhost:4222"
`)
	require.NoError(t, err)

	assert.Equal(t, "cbor", cfg.Codec)
	assert.Equal(t, "ws://collector:9000/ws", cfg.Client.URL)
	assert.Equal(t, "sensor-gw-1", cfg.Client.ID)
	assert.Equal(t, 2*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 6*time.Second, cfg.Heartbeat.LivenessWindow)
	assert.Equal(t, "backoff", cfg.Reconnect.Policy)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.Initial)
	assert.Equal(t, "nats", cfg.Bus.Kind)
	// untouched sections keep their defaults
	assert.Equal(t, "/ws", cfg.Acceptor.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Heartbeat.Interval = 0 }},
		{"window below interval", func(c *Config) { c.Heartbeat.LivenessWindow = time.Second }},
		{"unknown policy", func(c *Config) { c.Reconnect.Policy = "random" }},
		{"zero fixed delay", func(c *Config) { c.Reconnect.Delay = 0 }},
		{"backoff max below initial", func(c *Config) {
			c.Reconnect.Policy = "backoff"
			c.Reconnect.Max = c.Reconnect.Initial / 2
		}},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }},
		{"nats without url", func(c *Config) { c.Bus.Kind = "nats" }},
		{"unknown bus", func(c *Config) { c.Bus.Kind = "kafka" }},
		{"negative accept burst", func(c *Config) { c.Acceptor.AcceptBurst = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
		})
	}
}

func TestValidate_MsgPackCodec(t *testing.T) {
	cfg := Default()
	cfg.Codec = "msgpack"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DisabledWindow(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.LivenessWindow = -1
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulselink.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[heartbeat]
interval = "3s"
liveness_window = "9s"
`), 0o644))

	t.Setenv("PULSELINK_CLIENT_URL", "ws://env-host:1234/ws")
	t.Setenv("PULSELINK_RECONNECT_DELAY", "4s")
	t.Setenv("PULSELINK_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, "ws://env-host:1234/ws", cfg.Client.URL)
	assert.Equal(t, 4*time.Second, cfg.Reconnect.Delay)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulselink.toml")
	require.NoError(t, os.WriteFile(path, []byte(`codec = "cbor"`), 0o644))

	t.Setenv("PULSELINK_CODEC", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Codec)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestLoad_NoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Heartbeat, cfg.Heartbeat)
}
