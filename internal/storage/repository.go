package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"storico/internal/core"
	ports "storico/internal/sales"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that lexical order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ ports.SaleLister     = (*SQLiteRepository)(nil)
	_ ports.SaleWriter     = (*SQLiteRepository)(nil)
	_ ports.SnapshotReader = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// Snapshot describes the refresh state of one client.
type Snapshot struct {
	ClientID      string
	RefreshedAt   time.Time
	SaleCount     int
	LastAttemptAt time.Time
	LastError     string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between
	// the refresher and the ingest worker.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListClientSales implements sales.SaleLister. Sales come back in the order
// they were stored, each with its line items in original order.
func (r *SQLiteRepository) ListClientSales(ctx context.Context, clientID string) ([]core.Sale, error) {
	rows, err := r.queries.ListClientSales(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list sales for client %s: %w", clientID, err)
	}
	itemRows, err := r.queries.ListClientSaleItems(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list sale items for client %s: %w", clientID, err)
	}

	out := make([]core.Sale, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(timeLayout, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sale %s: parse created_at %q: %w", row.ID, row.CreatedAt, err)
		}
		index[row.ID] = len(out)
		out = append(out, core.Sale{
			ID:        row.ID,
			ClientID:  row.ClientID,
			CreatedAt: createdAt,
			Total:     core.Money{Cents: row.TotalCents},
		})
	}
	for _, it := range itemRows {
		i, ok := index[it.SaleID]
		if !ok {
			continue
		}
		out[i].Items = append(out[i].Items, core.LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    int(it.Quantity),
			UnitPrice:   core.Money{Cents: it.UnitPriceCents},
		})
	}
	return out, nil
}

// ReplaceClientSales implements sales.SaleWriter. The previous snapshot of the
// client is dropped and the new one written in a single transaction.
func (r *SQLiteRepository) ReplaceClientSales(ctx context.Context, clientID string, sales []core.Sale) error {
	if clientID == "" {
		return errors.New("replace sales: empty client id")
	}
	for _, s := range sales {
		if err := s.ValidateHeader(); err != nil {
			return fmt.Errorf("sale %q: %w", s.ID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteClientSaleItems(ctx, clientID); err != nil {
		return fmt.Errorf("delete sale items: %w", err)
	}
	if err := q.DeleteClientSales(ctx, clientID); err != nil {
		return fmt.Errorf("delete sales: %w", err)
	}

	seen := make(map[string]struct{}, len(sales))
	for pos, s := range sales {
		if _, dup := seen[s.ID]; dup {
			slog.WarnContext(ctx, "Duplicate sale id in snapshot, keeping first",
				"client_id", clientID, "sale_id", s.ID)
			continue
		}
		seen[s.ID] = struct{}{}
		err := q.InsertSale(ctx, InsertSaleParams{
			ClientID:   clientID,
			ID:         s.ID,
			Position:   int64(pos),
			CreatedAt:  s.CreatedAt.UTC().Format(timeLayout),
			TotalCents: s.Total.Cents,
		})
		if err != nil {
			return fmt.Errorf("insert sale %s: %w", s.ID, err)
		}
		for line, li := range s.Items {
			err := q.InsertSaleItem(ctx, InsertSaleItemParams{
				ClientID:       clientID,
				SaleID:         s.ID,
				LineNo:         int64(line),
				ProductID:      li.ProductID,
				ProductName:    li.ProductName,
				Quantity:       int64(li.Quantity),
				UnitPriceCents: li.UnitPrice.Cents,
			})
			if err != nil {
				return fmt.Errorf("insert item %d of sale %s: %w", line, s.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Client snapshot replaced",
		"client_id", clientID,
		"sales", len(seen))
	return nil
}

// StaleClients implements sales.SnapshotReader. Clients never refreshed come first.
func (r *SQLiteRepository) StaleClients(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.queries.ListStaleClients(ctx, ListStaleClientsParams{
		Cutoff: cutoff.UTC().Format(timeLayout),
		Limit:  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list stale clients: %w", err)
	}
	return ids, nil
}

// MarkRefreshed records a successful refresh.
func (r *SQLiteRepository) MarkRefreshed(ctx context.Context, clientID string, at time.Time, saleCount int) error {
	err := r.queries.UpsertSnapshotRefreshed(ctx, UpsertSnapshotRefreshedParams{
		ClientID:    clientID,
		RefreshedAt: at.UTC().Format(timeLayout),
		SaleCount:   int64(saleCount),
	})
	if err != nil {
		return fmt.Errorf("mark client %s refreshed: %w", clientID, err)
	}
	return nil
}

// MarkRefreshError records a failed refresh attempt. The last good snapshot and
// its refresh time are kept.
func (r *SQLiteRepository) MarkRefreshError(ctx context.Context, clientID string, at time.Time, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	err := r.queries.UpsertSnapshotError(ctx, UpsertSnapshotErrorParams{
		ClientID:      clientID,
		LastAttemptAt: at.UTC().Format(timeLayout),
		LastError:     msg,
	})
	if err != nil {
		return fmt.Errorf("mark client %s refresh error: %w", clientID, err)
	}

	slog.WarnContext(ctx, "Client snapshot refresh failed", "client_id", clientID, "error", msg)
	return nil
}

// GetSnapshot returns the refresh state of a client, or sales.ErrClientNotFound.
func (r *SQLiteRepository) GetSnapshot(ctx context.Context, clientID string) (Snapshot, error) {
	row, err := r.queries.GetSnapshot(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ports.ErrClientNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot %s: %w", clientID, err)
	}
	snap := Snapshot{
		ClientID:  row.ClientID,
		SaleCount: int(row.SaleCount),
		LastError: row.LastError.String,
	}
	if row.RefreshedAt.Valid {
		snap.RefreshedAt, _ = time.Parse(timeLayout, row.RefreshedAt.String)
	}
	snap.LastAttemptAt, _ = time.Parse(timeLayout, row.LastAttemptAt)
	return snap, nil
}

// CountSnapshots returns the number of tracked clients.
func (r *SQLiteRepository) CountSnapshots(ctx context.Context) (int64, error) {
	n, err := r.queries.CountSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
