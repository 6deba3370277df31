package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	applog "storico/internal/log"
	"storico/internal/sales"
)

// RefresherConfig holds configuration for the snapshot refresher
type RefresherConfig struct {
	// Interval is how often stale snapshots are looked up (default: 1m)
	Interval time.Duration

	// MaxAge is how old a snapshot may get before it is refreshed (default: 15m)
	MaxAge time.Duration

	// Concurrency bounds parallel refreshes (default: 4)
	Concurrency int

	// BatchSize is the max number of clients refreshed per cycle (default: 50)
	BatchSize int
}

// DefaultRefresherConfig returns sensible defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval:    time.Minute,
		MaxAge:      15 * time.Minute,
		Concurrency: 4,
		BatchSize:   50,
	}
}

// Syncer refreshes the snapshot of one client.
type Syncer interface {
	Sync(ctx context.Context, clientID string) (int, error)
}

// SnapshotRefresher periodically refreshes client snapshots older than MaxAge.
type SnapshotRefresher struct {
	tracker sales.SnapshotReader
	syncer  Syncer
	config  RefresherConfig
	now     func() time.Time
	logger  *slog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSnapshotRefresher creates a new refresher
func NewSnapshotRefresher(tracker sales.SnapshotReader, syncer Syncer, config RefresherConfig, logger *slog.Logger) *SnapshotRefresher {
	def := DefaultRefresherConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotRefresher{
		tracker: tracker,
		syncer:  syncer,
		config:  config,
		now:     time.Now,
		logger:  logger.With(applog.FieldComponent, applog.ComponentRefresher),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *SnapshotRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("snapshot refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Snapshot refresher started",
		"interval", r.config.Interval,
		"max_age", r.config.MaxAge,
		"concurrency", r.config.Concurrency)
	return nil
}

// Stop gracefully stops the refresher and waits for the current cycle.
func (r *SnapshotRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Snapshot refresher stopped gracefully")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Snapshot refresher stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// IsRunning returns whether the refresher is currently running
func (r *SnapshotRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SnapshotRefresher) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	r.RefreshStale(loopCtx)

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			r.RefreshStale(loopCtx)
		}
	}
}

// RefreshStale runs one refresh cycle and returns how many clients were
// refreshed successfully. Failures are logged and recorded by the syncer.
func (r *SnapshotRefresher) RefreshStale(ctx context.Context) int {
	cutoff := r.now().Add(-r.config.MaxAge)
	ids, err := r.tracker.StaleClients(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list stale clients", applog.FieldError, err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}
	r.logger.DebugContext(ctx, "Refreshing stale snapshots", "count", len(ids))

	var (
		mu sync.Mutex
		ok int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, err := r.syncer.Sync(gctx, id); err != nil {
				r.logger.WarnContext(gctx, "Snapshot refresh failed",
					applog.FieldClientID, id, applog.FieldError, err)
				return nil
			}
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ok
}
