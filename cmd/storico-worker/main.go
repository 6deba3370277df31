package main

import (
	"context"
	"errors"
	"os"
	"time"

	"storico/internal/amqp"
	"storico/internal/backend"
	"storico/internal/cli"
	applog "storico/internal/log"
	"storico/internal/services"
	"storico/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger())
	logger := cli.ConfigureLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting storico-worker")

	// The worker always maintains the SQLite snapshot, whatever the server reads
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.Type = backend.SQLiteBackend

	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize SQLite backend", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	if res.Upstream == nil {
		logger.Error("SALES_API_URL is required by storico-worker")
		_ = res.Cleanup()
		os.Exit(1)
	}

	syncer := services.NewSnapshotSyncer(res.Upstream, res.Writer, logger.Logger, services.WithTracker(res.Tracker))
	refresher := services.NewSnapshotRefresher(res.Tracker, syncer, services.RefresherConfig{
		Interval:    cfg.RefreshInterval,
		MaxAge:      cfg.RefreshMaxAge,
		Concurrency: cfg.RefreshConcurrency,
	}, logger.Logger)

	var amqpClient *amqp.Client
	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := refresher.Stop(ctx); err != nil {
			logger.Warn("Refresher stop error", applog.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start snapshot refresher", applog.FieldError, err)
		os.Exit(1)
	}

	// Event-driven refreshes are optional; the refresher alone keeps snapshots fresh
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}

		lookup, _ := res.Tracker.(worker.SnapshotLookup)
		ingest := worker.NewIngestWorker(syncer, lookup, logger.Logger)

		go func() {
			if err := amqpClient.ConsumeSaleRecorded(ctx, ingest.HandleSaleRecorded); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
		logger.Info("Consuming sale recorded events", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - snapshots refresh on schedule only",
			"interval", cfg.RefreshInterval,
			"max_age", cfg.RefreshMaxAge)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
