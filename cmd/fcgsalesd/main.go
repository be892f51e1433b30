package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fcgsales/config"
	"fcgsales/core"
	"fcgsales/core/genesis"
	"fcgsales/native/common"
	"fcgsales/observability/logging"
	telemetry "fcgsales/observability/otel"
	"fcgsales/rpc"
	"fcgsales/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides FCG_GENESIS and config GenesisFile)")
	flag.Usage = usage
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("fcgsalesd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

const stateNotice = `Ledger state is held in memory only. A restart keeps the receipt log and
its numbering but drops accounts, registries, offers and open escrow deposits.`

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(out, "\n%s\n", stateNotice)
}

func run(configFile, genesisFlag string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("FCG_ENV"))
	logger := logging.New(logging.Options{
		Service: "fcgsalesd",
		Env:     env,
		Level:   cfg.LogLevel,
	})

	telemetryCfg := telemetry.ConfigFromEnv("fcgsalesd", env, nil)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()
	if telemetryCfg.Enabled() {
		logger.Info("exporting telemetry", slog.String("endpoint", telemetryCfg.Endpoint))
	}

	spec, err := loadGenesis(resolveGenesisPath(genesisFlag, cfg.GenesisFile))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(core.Options{
		DB:      db,
		Pauses:  common.NewPauseSet(cfg.PausedModules...),
		Genesis: spec,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EpochInterval > 0 {
		go node.RunEpochTicker(ctx, time.Duration(cfg.EpochInterval)*time.Second)
	}

	server := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:          cfg.RPCAuthToken,
		RequestSkew:        time.Duration(cfg.RequestSkewSeconds) * time.Second,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		MetricsEnabled:     cfg.MetricsEnabled,
		Logger:             logger,
	})
	logger.Info("starting fcgsalesd",
		slog.String("network", cfg.Network),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.Any("paused", cfg.PausedModules))
	if err := server.Serve(ctx, cfg.RPCAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("fcgsalesd stopped")
	return nil
}

// resolveGenesisPath prefers the flag over the configured path. FCG_GENESIS is
// already folded into the config by config.Load.
func resolveGenesisPath(flagValue, configValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return strings.TrimSpace(configValue)
}

func loadGenesis(path string) (*genesis.Spec, error) {
	if path == "" {
		return nil, nil
	}
	spec, err := genesis.LoadSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load genesis %s: %w", path, err)
	}
	return spec, nil
}
