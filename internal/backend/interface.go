package backend

import (
	"context"
	"time"

	"storico/internal/sales"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the sale sources built for a backend and an optional
// cleanup function.
type BackendResult struct {
	// Lister serves history reads.
	Lister sales.SaleLister
	// Upstream is the remote source snapshots are refreshed from. Nil when
	// Lister already reads the system of record.
	Upstream sales.SaleLister
	// Writer stores refreshed snapshots. Nil for read-only backends.
	Writer sales.SaleWriter
	// Tracker records refresh state. Only set for sqlite.
	Tracker sales.SnapshotReader
	// Ping reports backend health. Nil when there is nothing to check.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Sales API, used by the api backend and as the sqlite upstream
	SalesAPIURL        string
	SalesAPIToken      string
	SalesAPITimeout    time.Duration
	SalesAPIMaxRetries int

	// Google Sheets specific
	GoogleSpreadsheetID  string
	GoogleSalesSheetName string

	// Memory backend specific
	DataDirectory string

	// Location applies to timestamps without a zone.
	Location *time.Location
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
	APIBackend    BackendType = "api"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend, APIBackend:
		return true
	default:
		return false
	}
}
