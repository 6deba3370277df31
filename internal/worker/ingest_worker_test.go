package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storico/internal/amqp"
	"storico/internal/core"
	"storico/internal/sales"
	"storico/internal/services"
	"storico/internal/storage"
)

type fakeSyncer struct {
	calls []string
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, clientID string) (int, error) {
	f.calls = append(f.calls, clientID)
	return 2, f.err
}

type fakeSnapshots map[string]storage.Snapshot

func (f fakeSnapshots) GetSnapshot(_ context.Context, clientID string) (storage.Snapshot, error) {
	if clientID == "db-down" {
		return storage.Snapshot{}, errors.New("database is locked")
	}
	s, ok := f[clientID]
	if !ok {
		return storage.Snapshot{}, sales.ErrClientNotFound
	}
	return s, nil
}

func TestHandleSaleRecorded(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snaps := fakeSnapshots{
		"fresh": {ClientID: "fresh", RefreshedAt: base.Add(time.Minute)},
		"stale": {ClientID: "stale", RefreshedAt: base.Add(-time.Minute)},
		"never": {ClientID: "never"},
	}

	tests := []struct {
		name      string
		clientID  string
		syncErr   error
		wantSync  bool
		wantError bool
	}{
		{name: "unknown client", clientID: "new", wantSync: true},
		{name: "snapshot older than message", clientID: "stale", wantSync: true},
		{name: "snapshot newer than message", clientID: "fresh"},
		{name: "never refreshed", clientID: "never", wantSync: true},
		{name: "lookup error still refreshes", clientID: "db-down", wantSync: true},
		{name: "sync failure", clientID: "stale", syncErr: errors.New("api down"), wantSync: true, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{err: tt.syncErr}
			w := NewIngestWorker(syncer, snaps, nil)
			msg := &amqp.SaleRecordedMessage{ClientID: tt.clientID, SaleID: "s1", Timestamp: base}

			err := w.HandleSaleRecorded(context.Background(), msg)
			if (err != nil) != tt.wantError {
				t.Fatalf("error = %v, wantError %v", err, tt.wantError)
			}
			if got := len(syncer.calls) == 1; got != tt.wantSync {
				t.Fatalf("synced = %v, want %v", got, tt.wantSync)
			}
		})
	}
}

func TestHandleSaleRecorded_WithoutSnapshotLookup(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewIngestWorker(syncer, nil, nil)
	if err := w.HandleSaleRecorded(context.Background(), amqp.NewSaleRecordedMessage("c1", "")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != "c1" {
		t.Fatalf("unexpected calls %v", syncer.calls)
	}
}

// upstreamSales answers with its current sales, then runs afterAnswer once.
type upstreamSales struct {
	sales       []core.Sale
	afterAnswer func()
}

func (u *upstreamSales) ListClientSales(_ context.Context, _ string) ([]core.Sale, error) {
	out := append([]core.Sale(nil), u.sales...)
	if hook := u.afterAnswer; hook != nil {
		u.afterAnswer = nil
		hook()
	}
	return out, nil
}

func TestHandleSaleRecorded_SaleRecordedDuringRefresh(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "storico.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	upstream := &upstreamSales{sales: []core.Sale{
		{ID: "old", ClientID: "c1", CreatedAt: t0.Add(-time.Hour), Total: core.Money{Cents: 500}},
	}}
	recorded := core.Sale{ID: "new", ClientID: "c1", CreatedAt: t0.Add(time.Second), Total: core.Money{Cents: 700}}
	upstream.afterAnswer = func() {
		// The sale lands after the API answered but before the refresh is recorded.
		upstream.sales = append(upstream.sales, recorded)
		now = t0.Add(2 * time.Second)
	}

	syncer := services.NewSnapshotSyncer(upstream, repo, nil,
		services.WithTracker(repo),
		services.WithSyncerClock(func() time.Time { return now }))
	if n, err := syncer.Sync(ctx, "c1"); err != nil || n != 1 {
		t.Fatalf("initial sync: n=%d err=%v", n, err)
	}

	w := NewIngestWorker(syncer, repo, nil)
	msg := &amqp.SaleRecordedMessage{ClientID: "c1", SaleID: "new", Timestamp: recorded.CreatedAt}
	if err := w.HandleSaleRecorded(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := repo.ListClientSales(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("snapshot has %d sales, want 2", len(got))
	}
	snap, err := repo.GetSnapshot(ctx, "c1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.SaleCount != 2 {
		t.Errorf("sale count = %d, want 2", snap.SaleCount)
	}
}
