package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storico/internal/amqp"
	applog "storico/internal/log"
	"storico/internal/sales"
	"storico/internal/services"
	"storico/internal/storage"
)

// SnapshotLookup returns the refresh state of a client snapshot.
type SnapshotLookup interface {
	GetSnapshot(ctx context.Context, clientID string) (storage.Snapshot, error)
}

// IngestWorker keeps local client snapshots in step with sale.recorded events.
type IngestWorker struct {
	syncer    services.Syncer
	snapshots SnapshotLookup
	logger    *slog.Logger
}

// NewIngestWorker creates a worker. snapshots may be nil, in which case every
// message triggers a refetch.
func NewIngestWorker(syncer services.Syncer, snapshots SnapshotLookup, logger *slog.Logger) *IngestWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestWorker{
		syncer:    syncer,
		snapshots: snapshots,
		logger:    logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandleSaleRecorded refetches the client's sales and replaces its snapshot.
// Messages older than the fetch that produced the current snapshot are
// already covered and are acknowledged without work.
func (w *IngestWorker) HandleSaleRecorded(ctx context.Context, msg *amqp.SaleRecordedMessage) error {
	w.logger.InfoContext(ctx, "Processing sale recorded message",
		applog.FieldClientID, msg.ClientID,
		applog.FieldSaleID, msg.SaleID)

	if w.snapshots != nil && !msg.Timestamp.IsZero() {
		snap, err := w.snapshots.GetSnapshot(ctx, msg.ClientID)
		switch {
		case err == nil && !snap.RefreshedAt.IsZero() && snap.RefreshedAt.After(msg.Timestamp):
			w.logger.DebugContext(ctx, "Snapshot newer than message, skipping",
				applog.FieldClientID, msg.ClientID,
				"refreshed_at", snap.RefreshedAt)
			return nil
		case err != nil && !errors.Is(err, sales.ErrClientNotFound):
			w.logger.WarnContext(ctx, "Could not read snapshot state, refreshing anyway",
				applog.FieldClientID, msg.ClientID, applog.FieldError, err)
		}
	}

	n, err := w.syncer.Sync(ctx, msg.ClientID)
	if err != nil {
		return fmt.Errorf("refresh client %s: %w", msg.ClientID, err)
	}

	w.logger.InfoContext(ctx, "Client snapshot ingested",
		applog.FieldClientID, msg.ClientID,
		applog.FieldSaleCount, n)
	return nil
}
