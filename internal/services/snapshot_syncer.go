package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storico/internal/core"
	applog "storico/internal/log"
	"storico/internal/sales"
)

// SnapshotSyncer copies the sales of one client from an authoritative source
// into a local store and records the outcome.
type SnapshotSyncer struct {
	source     sales.SaleLister
	target     sales.SaleWriter
	tracker    sales.SnapshotReader
	onReplaced func(clientID string)
	now        func() time.Time
	logger     *slog.Logger
}

// SyncerOption customizes a SnapshotSyncer.
type SyncerOption func(*SnapshotSyncer)

// WithTracker records refresh outcomes in t.
func WithTracker(t sales.SnapshotReader) SyncerOption {
	return func(s *SnapshotSyncer) { s.tracker = t }
}

// OnReplaced registers a callback run after a snapshot was written, typically
// a cache invalidation.
func OnReplaced(fn func(clientID string)) SyncerOption {
	return func(s *SnapshotSyncer) { s.onReplaced = fn }
}

// WithSyncerClock replaces the clock used for bookkeeping timestamps.
func WithSyncerClock(now func() time.Time) SyncerOption {
	return func(s *SnapshotSyncer) { s.now = now }
}

// NewSnapshotSyncer creates a syncer from source to target.
func NewSnapshotSyncer(source sales.SaleLister, target sales.SaleWriter, logger *slog.Logger, opts ...SyncerOption) *SnapshotSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SnapshotSyncer{
		source: source,
		target: target,
		now:    time.Now,
		logger: logger.With(applog.FieldComponent, applog.ComponentRefresher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync refetches clientID's sales and replaces the local snapshot. It returns
// the number of sales written. A client unknown to the source gets an empty
// snapshot.
//
// The refresh is recorded at the time the fetch started: any sale recorded
// after that instant may be missing from the response, so events for it must
// still trigger a refresh.
func (s *SnapshotSyncer) Sync(ctx context.Context, clientID string) (int, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return 0, errors.New("empty client id")
	}

	started := s.now()
	list, err := s.source.ListClientSales(ctx, clientID)
	if err != nil && !errors.Is(err, sales.ErrClientNotFound) {
		s.recordFailure(ctx, clientID, err)
		return 0, fmt.Errorf("fetch sales: %w", err)
	}

	list, dropped := dedupeSales(list)
	if dropped > 0 {
		s.logger.WarnContext(ctx, "Duplicate sale ids in upstream response, keeping first",
			applog.FieldClientID, clientID,
			"dropped", dropped)
	}

	if err := s.target.ReplaceClientSales(ctx, clientID, list); err != nil {
		s.recordFailure(ctx, clientID, err)
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}

	if s.tracker != nil {
		if err := s.tracker.MarkRefreshed(ctx, clientID, started, len(list)); err != nil {
			s.logger.WarnContext(ctx, "Failed to record refresh", applog.FieldClientID, clientID, applog.FieldError, err)
		}
	}
	if s.onReplaced != nil {
		s.onReplaced(clientID)
	}

	s.logger.InfoContext(ctx, "Client snapshot refreshed",
		applog.FieldClientID, clientID,
		applog.FieldSaleCount, len(list))
	return len(list), nil
}

// dedupeSales keeps the first sale of each id, in order.
func dedupeSales(list []core.Sale) ([]core.Sale, int) {
	seen := make(map[string]struct{}, len(list))
	out := make([]core.Sale, 0, len(list))
	for _, sale := range list {
		if _, dup := seen[sale.ID]; dup {
			continue
		}
		seen[sale.ID] = struct{}{}
		out = append(out, sale)
	}
	return out, len(list) - len(out)
}

func (s *SnapshotSyncer) recordFailure(ctx context.Context, clientID string, cause error) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.MarkRefreshError(ctx, clientID, s.now(), cause); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record refresh error",
			applog.FieldClientID, clientID, applog.FieldError, err)
	}
}
