package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOGGUARD_STATE_DIR", dir)
	t.Setenv("LOGGUARD_INSTANCE", "2")
	t.Setenv("LOGGUARD_LOCK_TIMEOUT", "45")
	t.Setenv("LOGGUARD_WATCH_INTERVAL", "1m")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StateDir != dir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, dir)
	}
	if cfg.Instance != "2" {
		t.Errorf("Instance = %q, want 2", cfg.Instance)
	}
	if cfg.LockTimeout != 45*time.Second {
		t.Errorf("LockTimeout = %v, want 45s", cfg.LockTimeout)
	}
	if cfg.WatchInterval != time.Minute {
		t.Errorf("WatchInterval = %v, want 1m", cfg.WatchInterval)
	}
	if cfg.LogGlob != "*.std*" {
		t.Errorf("LogGlob = %q, want *.std*", cfg.LogGlob)
	}
	if !cfg.TracingEnabled {
		t.Errorf("TracingEnabled = false, want true")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	valid := func() *Config {
		return &Config{
			StateDir:        dir,
			Instance:        "0",
			LockDir:         dir,
			LogGlob:         "*.std*",
			LockTimeout:     time.Second,
			WatchInterval:   time.Second,
			TracingProtocol: "grpc",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing state dir", mutate: func(c *Config) { c.StateDir = "" }, wantErr: true},
		{name: "state dir is a file", mutate: func(c *Config) { c.StateDir = file }, wantErr: true},
		{name: "instance with separator", mutate: func(c *Config) { c.Instance = "a/b" }, wantErr: true},
		{name: "zero lock timeout", mutate: func(c *Config) { c.LockTimeout = 0 }, wantErr: true},
		{name: "bad protocol", mutate: func(c *Config) { c.TracingProtocol = "udp" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
