package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ecobazaar/ordercore/internal/reconciler"
	"github.com/ecobazaar/ordercore/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	interval := 5 * time.Second
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid SWEEP_INTERVAL", "error", err, "value", v)
			os.Exit(1)
		}
		interval = parsed
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	sweeper := reconciler.NewSweeper(db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting adjustment reconciler", "interval", interval)

	if err := sweeper.Run(ctx, interval); err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("reconciler stopped")
			return
		}
		logger.Error("reconciler error", "error", err)
		os.Exit(1)
	}
}
