package main

import (
	"context"
	"fmt"
	"os"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(context.Background(), logger, cfg); err != nil {
		logger.Error("Ledger server stopped with error", applog.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}

	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if result.Cleanup == nil {
			return
		}
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if result.Notifier != nil {
		opts = append(opts, ledger.WithNotifier(result.Notifier))
	}
	store := ledger.NewStore(result.Persister, opts...)

	// A corrupt or unreadable slot starts an empty ledger; the next save
	// overwrites it.
	if err := store.Load(ctx); err != nil {
		logger.Warn("Starting with an empty ledger", applog.FieldError, err.Error())
	}

	srv := apphttp.NewServer(":"+cfg.Port, store,
		apphttp.WithLogger(logger),
		apphttp.WithReadinessCheck("storage", result.Ping),
	)

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"amqp_enabled", result.Notifier != nil,
		applog.FieldCount, store.Len())

	return cli.ServeUntilSignal(ctx, logger, srv, cfg.ShutdownTimeout)
}
