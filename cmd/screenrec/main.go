package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"screen-recorder/internal/cli"
	"screen-recorder/internal/config"
	"screen-recorder/internal/diagnostics"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/metrics"
	"screen-recorder/internal/session"
)

func main() {
	if err := run(); err != nil {
		cli.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal.
	_ = godotenv.Load()

	logging := config.LoggingFromEnv()
	log := logger.New(os.Stderr, logging.Level, logging.Format)

	store := config.NewJSONStore(config.DefaultSettingsPath())
	settings, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	met := metrics.New()
	eng := engine.New(settings, log, engine.WithSessionOptions(session.WithObserver(met)))
	defer eng.Close()

	deps := &cli.Dependencies{
		Engine:  eng,
		Metrics: met,
		Checker: diagnostics.NewChecker(),
		Fixer:   diagnostics.NewFixer(log),
		Store:   store,
		Log:     log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
