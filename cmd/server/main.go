// Package main is the entry point for the ledger core process: it loads
// configuration, wires every component via internal/app, and runs until an
// interrupt signal arrives: load config, init logger, wire dependencies,
// run, wait for signal, graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/ledgercore/internal/app"
	"github.com/aristath/ledgercore/internal/config"
	"github.com/aristath/ledgercore/internal/logging"
)

func main() {
	cfg := config.Load()

	log := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logging.SetGlobalLogger(log)

	log.Info().Msg("starting ledger core")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer services.DB.Close()

	log.Info().Int("port", cfg.Port).Msg("ledger core ready")

	if err := services.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("ledger core stopped")
}
