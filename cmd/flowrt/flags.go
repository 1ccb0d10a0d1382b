package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/c360/flowrt/config"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FLOWRT_CONFIG", "config.yaml"),
		"Path to configuration file (env: FLOWRT_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("FLOWRT_CONFIG", "config.yaml"),
		"Path to configuration file (env: FLOWRT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Override log level: debug, info, warn, error")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Override log format: json, text")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FLOWRT_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FLOWRT_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

// applyFlagOverrides lets explicit CLI flags win over the config file.
func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Flow-Based Dataflow Runtime

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with custom config
  %s --config=/etc/flowrt/config.yaml

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
