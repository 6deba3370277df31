package backend

import (
	"context"
	"fmt"
	"log/slog"

	applog "storico/internal/log"
	gsheet "storico/internal/sales/google"
	"storico/internal/sales/memory"
	"storico/internal/sales/rest"
	"storico/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case APIBackend:
		return f.createAPIBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &BackendResult{
		Lister:  repo,
		Writer:  repo,
		Tracker: repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}

	// The remote API is optional
	if config.SalesAPIURL != "" {
		client, err := f.newRESTClient(config)
		if err != nil {
			repo.Close()
			return nil, err
		}
		result.Upstream = client
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"upstream_enabled", result.Upstream != nil)

	return result, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.NewFromEnv(ctx, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Lister:  cli,
		Cleanup: nil, // No cleanup needed for sheets backend
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		"clients", len(store.Clients()))

	return &BackendResult{
		Lister:  store,
		Writer:  store,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}

func (f *DefaultFactory) createAPIBackend(config Config) (*BackendResult, error) {
	client, err := f.newRESTClient(config)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized sales API backend", "base_url", config.SalesAPIURL)

	return &BackendResult{
		Lister: client,
	}, nil
}

func (f *DefaultFactory) newRESTClient(config Config) (*rest.Client, error) {
	retry := rest.DefaultRetryConfig()
	retry.MaxRetries = config.SalesAPIMaxRetries

	client, err := rest.New(rest.Config{
		BaseURL:  config.SalesAPIURL,
		Token:    config.SalesAPIToken,
		Timeout:  config.SalesAPITimeout,
		Retry:    retry,
		Location: config.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sales API client: %w", err)
	}
	return client, nil
}
