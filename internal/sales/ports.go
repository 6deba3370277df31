package sales

import (
	"context"
	"errors"
	"time"

	"storico/internal/core"
)

// ErrClientNotFound is returned by sources that distinguish an unknown client
// from a client without sales.
var ErrClientNotFound = errors.New("client not found")

// Ports for outbound adapters.
type (
	// SaleLister returns every known sale of a client, in source order.
	SaleLister interface {
		ListClientSales(ctx context.Context, clientID string) ([]core.Sale, error)
	}

	// SaleWriter replaces the stored sales of a client.
	SaleWriter interface {
		ReplaceClientSales(ctx context.Context, clientID string, sales []core.Sale) error
	}

	// SnapshotReader tracks when each client's local copy was last refreshed.
	SnapshotReader interface {
		// StaleClients returns up to limit client ids whose snapshot is older than cutoff.
		StaleClients(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
		MarkRefreshed(ctx context.Context, clientID string, at time.Time, saleCount int) error
		MarkRefreshError(ctx context.Context, clientID string, at time.Time, cause error) error
	}
)
