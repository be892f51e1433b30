package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	envRPCAddress   = "FCG_RPC_ADDRESS"
	envDataDir      = "FCG_DATA_DIR"
	envRPCAuthToken = "FCG_RPC_AUTH_TOKEN"
	envGenesisFile  = "FCG_GENESIS"
)

// Config is the node configuration persisted as TOML.
type Config struct {
	RPCAddress         string   `toml:"RPCAddress"`
	DataDir            string   `toml:"DataDir"`
	GenesisFile        string   `toml:"GenesisFile"`
	Network            string   `toml:"Network"`
	LogLevel           string   `toml:"LogLevel"`
	EpochInterval      uint64   `toml:"EpochInterval"`
	RequestSkewSeconds uint64   `toml:"RequestSkewSeconds"`
	RateLimitPerMinute float64  `toml:"RateLimitPerMinute"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	PausedModules      []string `toml:"PausedModules"`
	MetricsEnabled     bool     `toml:"MetricsEnabled"`
	RPCAuthToken       string   `toml:"RPCAuthToken,omitempty"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:         ":8080",
		DataDir:            "./fcg-data",
		Network:            "fcg-local",
		LogLevel:           "info",
		EpochInterval:      60,
		RequestSkewSeconds: 120,
		RateLimitPerMinute: 120,
		RateLimitBurst:     20,
		PausedModules:      []string{},
		MetricsEnabled:     true,
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults. Environment overrides are applied last and never persisted.
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		cfg = Default()
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	if strings.TrimSpace(cfg.Network) == "" {
		cfg.Network = "fcg-local"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envRPCAddress)); v != "" {
		cfg.RPCAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envGenesisFile)); v != "" {
		cfg.GenesisFile = v
	}
	if v := strings.TrimSpace(os.Getenv(envRPCAuthToken)); v != "" {
		cfg.RPCAuthToken = v
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
