package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fadedpez/balancewatch/internal/app"
	"github.com/fadedpez/balancewatch/internal/config"
	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
)

func main() {
	once := flag.Bool("once", false, "Run a single batch and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.ForEnvironment(cfg.Environment, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize: %v", err)
		os.Exit(1)
	}

	if *once {
		os.Exit(runOnce(ctx, application, logger))
	}

	if err := application.Start(ctx); err != nil {
		logger.Error("Failed to start: %v", err)
		application.Shutdown()
		os.Exit(1)
	}
	logger.Info("Reconciler is running every %v. Press CTRL-C to exit.", cfg.Interval)

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logger.Info("Shutting down...")
	application.Shutdown()
}

func runOnce(ctx context.Context, application *app.App, logger *logging.Logger) int {
	defer application.Shutdown()

	batch, err := application.RunOnce(ctx)
	if err != nil {
		if !types.IsReconError(err, types.ErrBatchFailed) {
			logger.LogError(err)
		}
		return 1
	}

	s := batch.Summary
	logger.Info("Batch %s: %d/%d groups succeeded, %d skipped, %d pairs, %d flagged",
		batch.ID, s.GroupsSucceeded, s.GroupsAttempted, s.GroupsSkipped, s.PairsProcessed, s.ResultsFlagged)
	return 0
}
