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

	"genomarket/config"
	"genomarket/core/events"
	"genomarket/native/common"
	"genomarket/observability/logging"
	telemetry "genomarket/observability/otel"
	"genomarket/rpc"
	"genomarket/runtime"
	"genomarket/services/orderindex"
	"genomarket/storage"
)

const genesisPathEnv = "MARKET_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis YAML file (overrides MARKET_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("marketd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if err := run(cfg, *configFile, *genesisFlag, logger); err != nil {
		logger.Error("marketd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath, genesisFlag string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "marketd",
			Environment: cfg.Environment,
			Endpoint:    endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      true,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	if cfg.StorageBackend != "memory" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := storage.Open(cfg.StorageBackend, cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	genesisPath := resolveGenesisPath(genesisFlag, cfg, configPath)
	genesis, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis %s: %w", genesisPath, err)
	}
	if genesis.ChainID != cfg.ChainID {
		return fmt.Errorf("genesis chain id %d does not match configured chain id %d", genesis.ChainID, cfg.ChainID)
	}
	ed, err := config.ParseAmount(genesis.ExistentialDeposit)
	if err != nil {
		return fmt.Errorf("existential deposit: %w", err)
	}

	pauses := common.NewPauseSet(cfg.PauseMap())
	hub := rpc.NewHub()
	emitters := events.Multi{hub}

	if cfg.Indexer.Driver != "" {
		indexDB, err := orderindex.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		if sqlDB, err := indexDB.DB(); err == nil {
			defer sqlDB.Close()
		}
		emitters = append(emitters, orderindex.New(indexDB, logger))
		logger.Info("order index enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
	}

	rt, err := runtime.New(db, runtime.Options{
		ChainID:            cfg.ChainID,
		ExistentialDeposit: ed,
		Pauses:             pauses,
		Emitter:            emitters,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	initialized, err := rt.Initialized()
	if err != nil {
		return fmt.Errorf("inspect state: %w", err)
	}
	if !initialized {
		if err := rt.ApplyGenesis(genesis); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied", slog.String("path", genesisPath))
	}

	var adminSecret []byte
	if env := strings.TrimSpace(cfg.RPC.AdminSecretEnv); env != "" {
		adminSecret = []byte(os.Getenv(env))
	}
	if len(adminSecret) == 0 {
		logger.Warn("admin secret not set, admin routes disabled", slog.String("env", cfg.RPC.AdminSecretEnv))
	}

	server := rpc.NewServer(rt, pauses, hub, rpc.Config{
		Address:           cfg.RPC.Address,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		AdminSecret:       adminSecret,
		AdminIssuer:       cfg.RPC.AdminIssuer,
	}, logger)

	logger.Info("marketd starting",
		slog.Uint64("chain_id", cfg.ChainID),
		slog.String("address", cfg.RPC.Address),
		slog.String("storage", cfg.StorageBackend),
		slog.Any("pallets", rt.Pallets()))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("marketd shut down")
	return nil
}

// resolveGenesisPath prefers the flag, then the environment, then the config
// file entry resolved relative to the config file.
func resolveGenesisPath(flagValue string, cfg *config.Config, configPath string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv(genesisPathEnv)); env != "" {
		return env
	}
	return cfg.ResolveGenesis(configPath)
}
