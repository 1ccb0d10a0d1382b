// Package config loads and validates the process configuration. The file is
// YAML; a handful of environment variables override connection settings so
// deployments can keep secrets out of the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/flowrt/errors"
)

// Context backend selection.
const (
	ContextBackendMemory = "memory"
	ContextBackendNATS   = "nats"
)

// Config is the complete process configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Context ContextConfig `yaml:"context"`
	NATS    NATSConfig    `yaml:"nats"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// RuntimeConfig controls graph execution.
type RuntimeConfig struct {
	// FlowFile is where the deployed flow set persists between restarts.
	FlowFile string `yaml:"flow_file"`
	// MailboxSize bounds pending messages per node.
	MailboxSize int `yaml:"mailbox_size"`
	// StopTimeout is the per-node grace period during shutdown.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ContextConfig selects where scoped context lives.
type ContextConfig struct {
	// Backend is "memory" or "nats".
	Backend string `yaml:"backend"`
}

// NATSConfig configures the NATS connection used by the durable context
// and flow stores.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// HTTPConfig configures the observation endpoints.
type HTTPConfig struct {
	// MetricsAddr serves Prometheus exposition; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`
	// EventsAddr serves the websocket event feed; empty disables it.
	EventsAddr string `yaml:"events_addr"`
}

// Default returns a configuration that runs standalone: memory context, no
// NATS, flows persisted next to the binary.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Runtime: RuntimeConfig{
			FlowFile:    "flows.json",
			MailboxSize: 1024,
			StopTimeout: 5 * time.Second,
		},
		Context: ContextConfig{
			Backend: ContextBackendMemory,
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ConnectTimeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			MetricsAddr: ":9090",
			EventsAddr:  ":1880",
		},
	}
}

// Load reads the file into the defaults and applies environment overrides.
// A missing file is not an error; the defaults run as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.WrapTransient(err, "Config", "Load", "read config file")
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("config file %s: %w", path, err),
				"Config", "Load", "parse YAML")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides connection settings from the environment.
func (c *Config) applyEnv() {
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if level := os.Getenv("FLOWRT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("log level %q: %w", c.Log.Level, errors.ErrInvalidConfig),
			"Config", "Validate", "log level check")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("log format %q: %w", c.Log.Format, errors.ErrInvalidConfig),
			"Config", "Validate", "log format check")
	}

	switch c.Context.Backend {
	case ContextBackendMemory, ContextBackendNATS:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("context backend %q: %w", c.Context.Backend, errors.ErrInvalidConfig),
			"Config", "Validate", "context backend check")
	}

	if c.Context.Backend == ContextBackendNATS && c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("nats context backend requires a url: %w", errors.ErrMissingConfig),
			"Config", "Validate", "nats url check")
	}

	if c.Runtime.MailboxSize < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("mailbox size %d: %w", c.Runtime.MailboxSize, errors.ErrInvalidConfig),
			"Config", "Validate", "mailbox size check")
	}
	if c.Runtime.StopTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("stop timeout %s: %w", c.Runtime.StopTimeout, errors.ErrInvalidConfig),
			"Config", "Validate", "stop timeout check")
	}

	return nil
}
