package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storico/internal/core"
	ports "storico/internal/sales"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestReplaceAndListClientSales(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rome := time.FixedZone("CET", 3600)

	sales := []core.Sale{
		{
			ID: "s2", ClientID: "c1", CreatedAt: time.Date(2025, 3, 1, 0, 30, 0, 0, rome),
			Total: core.Money{Cents: 1500},
			Items: []core.LineItem{
				{ProductID: "b", ProductName: "Bread", Quantity: 2, UnitPrice: core.Money{Cents: 250}},
				{ProductID: "a", ProductName: "Apple", Quantity: 5, UnitPrice: core.Money{Cents: 200}},
			},
		},
		{
			ID: "s1", ClientID: "c1", CreatedAt: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC),
			Total: core.Money{Cents: 0},
		},
	}
	if err := repo.ReplaceClientSales(ctx, "c1", sales); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := repo.ListClientSales(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s2" || got[1].ID != "s1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].CreatedAt.Equal(sales[0].CreatedAt) {
		t.Errorf("created_at mismatch: got %v want %v", got[0].CreatedAt, sales[0].CreatedAt)
	}
	if len(got[0].Items) != 2 || got[0].Items[0].ProductID != "b" || got[0].Items[1].Quantity != 5 {
		t.Errorf("unexpected items: %+v", got[0].Items)
	}
	if got[0].Total.Cents != 1500 || got[0].Items[0].UnitPrice.Cents != 250 {
		t.Errorf("unexpected amounts: %+v", got[0])
	}

	// Replacing drops the previous snapshot.
	if err := repo.ReplaceClientSales(ctx, "c1", sales[1:]); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	got, _ = repo.ListClientSales(ctx, "c1")
	if len(got) != 1 || got[0].ID != "s1" || len(got[0].Items) != 0 {
		t.Fatalf("unexpected snapshot after replace: %+v", got)
	}

	other, err := repo.ListClientSales(ctx, "unknown")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty list for unknown client, got %+v err=%v", other, err)
	}
}

func TestReplaceClientSales_RejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	good := core.Sale{ID: "s1", CreatedAt: time.Now(), Total: core.Money{Cents: 10}}
	if err := repo.ReplaceClientSales(ctx, "c1", []core.Sale{good}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	bad := core.Sale{ID: "s2", Total: core.Money{Cents: 5}}
	err := repo.ReplaceClientSales(ctx, "c1", []core.Sale{good, bad})
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	got, _ := repo.ListClientSales(ctx, "c1")
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("previous snapshot should be untouched, got %+v", got)
	}
}

func TestReplaceClientSales_KeepsMalformedItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := core.Sale{
		ID: "s1", CreatedAt: time.Now(), Total: core.Money{Cents: 10},
		Items: []core.LineItem{{ProductID: "", Quantity: 2}, {ProductID: "p", Quantity: 0}},
	}
	if err := repo.ReplaceClientSales(ctx, "c1", []core.Sale{s}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := repo.ListClientSales(ctx, "c1")
	if len(got) != 1 || len(got[0].Items) != 2 {
		t.Fatalf("expected items to be stored as-is, got %+v", got)
	}
}

func TestSnapshotBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	if _, err := repo.GetSnapshot(ctx, "c1"); !errors.Is(err, ports.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}

	if err := repo.MarkRefreshed(ctx, "fresh", now.Add(-time.Minute), 3); err != nil {
		t.Fatalf("mark refreshed: %v", err)
	}
	if err := repo.MarkRefreshed(ctx, "old", now.Add(-time.Hour), 1); err != nil {
		t.Fatalf("mark refreshed: %v", err)
	}
	if err := repo.MarkRefreshError(ctx, "never", now, errors.New("boom")); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	stale, err := repo.StaleClients(ctx, now.Add(-15*time.Minute), 10)
	if err != nil {
		t.Fatalf("stale clients: %v", err)
	}
	if len(stale) != 2 || stale[0] != "never" || stale[1] != "old" {
		t.Fatalf("unexpected stale clients: %v", stale)
	}

	// A failed refresh keeps the last good refresh time.
	if err := repo.MarkRefreshError(ctx, "fresh", now, errors.New("timeout")); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	snap, err := repo.GetSnapshot(ctx, "fresh")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.RefreshedAt.Equal(now.Add(-time.Minute)) || snap.SaleCount != 3 || snap.LastError != "timeout" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := repo.MarkRefreshed(ctx, "fresh", now, 4); err != nil {
		t.Fatalf("mark refreshed: %v", err)
	}
	snap, _ = repo.GetSnapshot(ctx, "fresh")
	if snap.LastError != "" || snap.SaleCount != 4 {
		t.Fatalf("error should be cleared: %+v", snap)
	}

	n, err := repo.CountSnapshots(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count = %d err=%v, want 3", n, err)
	}
}
