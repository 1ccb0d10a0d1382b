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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ContextBackendMemory, cfg.Context.Backend)
	assert.Equal(t, 1024, cfg.Runtime.MailboxSize)
	assert.Equal(t, 5*time.Second, cfg.Runtime.StopTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: text
runtime:
  flow_file: /var/lib/flowrt/flows.json
  mailbox_size: 64
  stop_timeout: 10s
context:
  backend: nats
nats:
  url: nats://broker:4222
http:
  metrics_addr: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/var/lib/flowrt/flows.json", cfg.Runtime.FlowFile)
	assert.Equal(t, 64, cfg.Runtime.MailboxSize)
	assert.Equal(t, 10*time.Second, cfg.Runtime.StopTimeout)
	assert.Equal(t, ContextBackendNATS, cfg.Context.Backend)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Empty(t, cfg.HTTP.MetricsAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
nats:
  url: nats://from-file:4222
`)
	t.Setenv("NATS_URL", "nats://from-env:4222")
	t.Setenv("FLOWRT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://from-env:4222", cfg.NATS.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad context backend", func(c *Config) { c.Context.Backend = "redis" }},
		{"nats backend without url", func(c *Config) {
			c.Context.Backend = ContextBackendNATS
			c.NATS.URL = ""
		}},
		{"negative mailbox", func(c *Config) { c.Runtime.MailboxSize = -1 }},
		{"negative stop timeout", func(c *Config) { c.Runtime.StopTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "log: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
