package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Sale struct {
	ClientID   string
	ID         string
	Position   int64
	CreatedAt  string
	TotalCents int64
}

type SaleItem struct {
	ClientID       string
	SaleID         string
	LineNo         int64
	ProductID      string
	ProductName    string
	Quantity       int64
	UnitPriceCents int64
}

type ClientSnapshot struct {
	ClientID      string
	RefreshedAt   sql.NullString
	SaleCount     int64
	LastAttemptAt string
	LastError     sql.NullString
}

const deleteClientSaleItems = `-- name: DeleteClientSaleItems :exec
DELETE FROM sale_items WHERE client_id = ?
`

func (q *Queries) DeleteClientSaleItems(ctx context.Context, clientID string) error {
	_, err := q.db.ExecContext(ctx, deleteClientSaleItems, clientID)
	return err
}

const deleteClientSales = `-- name: DeleteClientSales :exec
DELETE FROM sales WHERE client_id = ?
`

func (q *Queries) DeleteClientSales(ctx context.Context, clientID string) error {
	_, err := q.db.ExecContext(ctx, deleteClientSales, clientID)
	return err
}

const insertSale = `-- name: InsertSale :exec
INSERT INTO sales (client_id, id, position, created_at, total_cents)
VALUES (?, ?, ?, ?, ?)
`

type InsertSaleParams struct {
	ClientID   string
	ID         string
	Position   int64
	CreatedAt  string
	TotalCents int64
}

func (q *Queries) InsertSale(ctx context.Context, arg InsertSaleParams) error {
	_, err := q.db.ExecContext(ctx, insertSale,
		arg.ClientID,
		arg.ID,
		arg.Position,
		arg.CreatedAt,
		arg.TotalCents,
	)
	return err
}

const insertSaleItem = `-- name: InsertSaleItem :exec
INSERT INTO sale_items (client_id, sale_id, line_no, product_id, product_name, quantity, unit_price_cents)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type InsertSaleItemParams struct {
	ClientID       string
	SaleID         string
	LineNo         int64
	ProductID      string
	ProductName    string
	Quantity       int64
	UnitPriceCents int64
}

func (q *Queries) InsertSaleItem(ctx context.Context, arg InsertSaleItemParams) error {
	_, err := q.db.ExecContext(ctx, insertSaleItem,
		arg.ClientID,
		arg.SaleID,
		arg.LineNo,
		arg.ProductID,
		arg.ProductName,
		arg.Quantity,
		arg.UnitPriceCents,
	)
	return err
}

const listClientSales = `-- name: ListClientSales :many
SELECT client_id, id, position, created_at, total_cents
FROM sales
WHERE client_id = ?
ORDER BY position
`

func (q *Queries) ListClientSales(ctx context.Context, clientID string) ([]Sale, error) {
	rows, err := q.db.QueryContext(ctx, listClientSales, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sale
	for rows.Next() {
		var i Sale
		if err := rows.Scan(
			&i.ClientID,
			&i.ID,
			&i.Position,
			&i.CreatedAt,
			&i.TotalCents,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listClientSaleItems = `-- name: ListClientSaleItems :many
SELECT si.client_id, si.sale_id, si.line_no, si.product_id, si.product_name, si.quantity, si.unit_price_cents
FROM sale_items si
JOIN sales s ON s.client_id = si.client_id AND s.id = si.sale_id
WHERE si.client_id = ?
ORDER BY s.position, si.line_no
`

func (q *Queries) ListClientSaleItems(ctx context.Context, clientID string) ([]SaleItem, error) {
	rows, err := q.db.QueryContext(ctx, listClientSaleItems, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaleItem
	for rows.Next() {
		var i SaleItem
		if err := rows.Scan(
			&i.ClientID,
			&i.SaleID,
			&i.LineNo,
			&i.ProductID,
			&i.ProductName,
			&i.Quantity,
			&i.UnitPriceCents,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertSnapshotRefreshed = `-- name: UpsertSnapshotRefreshed :exec
INSERT INTO client_snapshots (client_id, refreshed_at, sale_count, last_attempt_at, last_error)
VALUES (?, ?, ?, ?, NULL)
ON CONFLICT (client_id) DO UPDATE SET
    refreshed_at = excluded.refreshed_at,
    sale_count = excluded.sale_count,
    last_attempt_at = excluded.last_attempt_at,
    last_error = NULL
`

type UpsertSnapshotRefreshedParams struct {
	ClientID    string
	RefreshedAt string
	SaleCount   int64
}

func (q *Queries) UpsertSnapshotRefreshed(ctx context.Context, arg UpsertSnapshotRefreshedParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshotRefreshed,
		arg.ClientID,
		arg.RefreshedAt,
		arg.SaleCount,
		arg.RefreshedAt,
	)
	return err
}

const upsertSnapshotError = `-- name: UpsertSnapshotError :exec
INSERT INTO client_snapshots (client_id, refreshed_at, sale_count, last_attempt_at, last_error)
VALUES (?, NULL, 0, ?, ?)
ON CONFLICT (client_id) DO UPDATE SET
    last_attempt_at = excluded.last_attempt_at,
    last_error = excluded.last_error
`

type UpsertSnapshotErrorParams struct {
	ClientID      string
	LastAttemptAt string
	LastError     string
}

func (q *Queries) UpsertSnapshotError(ctx context.Context, arg UpsertSnapshotErrorParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshotError, arg.ClientID, arg.LastAttemptAt, arg.LastError)
	return err
}

const listStaleClients = `-- name: ListStaleClients :many
SELECT client_id
FROM client_snapshots
WHERE refreshed_at IS NULL OR refreshed_at < ?
ORDER BY COALESCE(refreshed_at, ''), client_id
LIMIT ?
`

type ListStaleClientsParams struct {
	Cutoff string
	Limit  int64
}

func (q *Queries) ListStaleClients(ctx context.Context, arg ListStaleClientsParams) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listStaleClients, arg.Cutoff, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var clientID string
		if err := rows.Scan(&clientID); err != nil {
			return nil, err
		}
		items = append(items, clientID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSnapshot = `-- name: GetSnapshot :one
SELECT client_id, refreshed_at, sale_count, last_attempt_at, last_error
FROM client_snapshots
WHERE client_id = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, clientID string) (ClientSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, clientID)
	var i ClientSnapshot
	err := row.Scan(
		&i.ClientID,
		&i.RefreshedAt,
		&i.SaleCount,
		&i.LastAttemptAt,
		&i.LastError,
	)
	return i, err
}

const countSnapshots = `-- name: CountSnapshots :one
SELECT COUNT(*) FROM client_snapshots
`

func (q *Queries) CountSnapshots(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSnapshots)
	var count int64
	err := row.Scan(&count)
	return count, err
}
