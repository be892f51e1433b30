package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.Network != "fcg-local" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EpochInterval != 60 || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if !strings.Contains(string(raw), `RPCAddress = ":8080"`) {
		t.Fatalf("persisted config missing RPCAddress:\n%s", raw)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.DataDir != cfg.DataDir {
		t.Fatalf("reload mismatch: %q != %q", again.DataDir, cfg.DataDir)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
Network = "fcg-test"
LogLevel = "debug"
EpochInterval = 0
RequestSkewSeconds = 30
RateLimitPerMinute = 600
RateLimitBurst = 50
PausedModules = ["Escrow"]
MetricsEnabled = false
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.Network != "fcg-test" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.EpochInterval != 0 || cfg.RequestSkewSeconds != 30 {
		t.Fatalf("unexpected timing: %+v", cfg)
	}
	if cfg.RateLimitPerMinute != 600 || cfg.RateLimitBurst != 50 {
		t.Fatalf("unexpected rate limits: %+v", cfg)
	}
	if len(cfg.PausedModules) != 1 || cfg.PausedModules[0] != "Escrow" {
		t.Fatalf("unexpected paused modules: %v", cfg.PausedModules)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("metrics should be disabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	t.Setenv(envRPCAddress, "0.0.0.0:7777")
	t.Setenv(envDataDir, "/var/lib/fcg")
	t.Setenv(envRPCAuthToken, "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:7777" || cfg.DataDir != "/var/lib/fcg" || cfg.RPCAuthToken != "s3cret" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted: %v", err)
	}
	if strings.Contains(string(raw), "7777") || strings.Contains(string(raw), "s3cret") {
		t.Fatalf("env overrides leaked into file:\n%s", raw)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty rpc", func(c *Config) { c.RPCAddress = " " }, "RPCAddress"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "DataDir"},
		{"zero skew", func(c *Config) { c.RequestSkewSeconds = 0 }, "RequestSkewSeconds"},
		{"huge skew", func(c *Config) { c.RequestSkewSeconds = MaxRequestSkewSeconds + 1 }, "RequestSkewSeconds"},
		{"negative rate", func(c *Config) { c.RateLimitPerMinute = -1 }, "RateLimitPerMinute"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "RateLimitBurst"},
		{"unknown module", func(c *Config) { c.PausedModules = []string{"swap"} }, "swap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	cfg := Default()
	cfg.RateLimitPerMinute = 0
	cfg.RateLimitBurst = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limiting should validate: %v", err)
	}
}
