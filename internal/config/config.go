package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Cluster instance
	StateDir string // Shared state directory with the cluster log files
	Instance string // Cluster instance id, names the advisory lock
	LockDir  string // Directory holding the advisory lock files

	// Surveillance settings
	LogGlob       string        // Candidate log files inside StateDir
	BaselinePath  string        // Optional yaml baseline ignore list
	LockTimeout   time.Duration // Upper bound for waiting on the advisory lock
	WatchInterval time.Duration // Interval between sweeps in watch mode

	// Observability
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv reads configuration from environment variables without validating it
func FromEnv() *Config {
	return &Config{
		StateDir: getEnv("LOGGUARD_STATE_DIR", ""),
		Instance: getEnv("LOGGUARD_INSTANCE", "0"),
		LockDir:  getEnv("LOGGUARD_LOCK_DIR", os.TempDir()),

		LogGlob:       getEnv("LOGGUARD_LOG_GLOB", "*.std*"),
		BaselinePath:  getEnv("LOGGUARD_BASELINE_PATH", ""),
		LockTimeout:   getEnvDuration("LOGGUARD_LOCK_TIMEOUT", 30*time.Second),
		WatchInterval: getEnvDuration("LOGGUARD_WATCH_INTERVAL", 30*time.Second),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", ""),
		TracingProtocol: getEnv("TRACING_PROTOCOL", "grpc"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("LOGGUARD_STATE_DIR is required")
	}
	if info, err := os.Stat(c.StateDir); err != nil || !info.IsDir() {
		return fmt.Errorf("LOGGUARD_STATE_DIR %q is not a directory", c.StateDir)
	}
	if strings.TrimSpace(c.Instance) == "" || strings.ContainsAny(c.Instance, `/\`) {
		return fmt.Errorf("LOGGUARD_INSTANCE %q is invalid", c.Instance)
	}
	if c.LockDir == "" {
		return fmt.Errorf("LOGGUARD_LOCK_DIR is required")
	}
	if c.LogGlob == "" {
		return fmt.Errorf("LOGGUARD_LOG_GLOB is required")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOGGUARD_LOCK_TIMEOUT must be positive")
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("LOGGUARD_WATCH_INTERVAL must be positive")
	}
	if c.TracingProtocol != "grpc" && c.TracingProtocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be grpc or http")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
