package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"storico/internal/amqp"
	"storico/internal/backend"
	"storico/internal/cache"
	"storico/internal/cli"
	apphttp "storico/internal/http"
	"storico/internal/lockout"
	applog "storico/internal/log"
	"storico/internal/middleware/ratelimit"
	"storico/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger())
	logger := cli.ConfigureLogger(cfg, applog.ComponentApp)
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", applog.FieldError, err, "tz", cfg.Timezone)
		os.Exit(1)
	}

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	history := services.NewHistoryService(res.Lister, services.HistoryConfig{
		DefaultMonths: cfg.HistoryMonths,
		CacheSize:     cfg.HistoryCacheSize,
		CacheTTL:      cfg.HistoryCacheTTL,
		Location:      loc,
	}, logger.Logger)

	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register(history.Cache())
	cacheManager.StartCleanup(cfg.HistoryCacheTTL)

	guard := lockout.New(lockout.Config{
		MaxAttempts:  cfg.LockoutMaxAttempts,
		LockDuration: cfg.LockoutDuration,
	}, lockout.SystemClock)
	stopPrune := make(chan struct{})
	go pruneLockouts(guard, cfg.LockoutDuration, stopPrune, logger)

	opts := apphttp.Options{
		History:    history,
		AdminToken: cfg.AdminToken,
		Lockout:    guard,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CacheStats:  history.Cache().Stats,
		ReadyChecks: map[string]apphttp.CheckFunc{},
		Logger:      logger,
	}
	if res.Ping != nil {
		opts.ReadyChecks["storage"] = res.Ping
	}

	// Admin refreshes run inline when the backend keeps a local snapshot
	if res.Upstream != nil && res.Writer != nil {
		syncOpts := []services.SyncerOption{
			services.OnReplaced(func(clientID string) { history.Invalidate(clientID) }),
		}
		if res.Tracker != nil {
			syncOpts = append(syncOpts, services.WithTracker(res.Tracker))
		}
		opts.Syncer = services.NewSnapshotSyncer(res.Upstream, res.Writer, logger.Logger, syncOpts...)
	}

	// With a broker, refreshes are queued for storico-worker instead
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		amqpClient, err = amqp.NewClient(connectCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cancel()
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, refreshes will run inline", applog.FieldError, err)
			amqpClient = nil
		} else {
			opts.Publisher = amqpClient
			opts.ReadyChecks["amqp"] = func(context.Context) error {
				if !amqpClient.IsConnected() {
					return amqp.ErrNotConnected
				}
				return nil
			}
			logger.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, opts)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		close(stopPrune)
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting storico server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"history_months", cfg.HistoryMonths,
		"admin_enabled", cfg.AdminToken != "")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// pruneLockouts drops expired lockout entries until stop is closed.
func pruneLockouts(guard *lockout.Guard, every time.Duration, stop <-chan struct{}, logger *applog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := guard.Prune(); n > 0 {
				logger.Debug("Pruned expired lockouts", "removed", n)
			}
		case <-stop:
			return
		}
	}
}
