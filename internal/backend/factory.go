package backend

import (
	"context"
	"fmt"
	"log/slog"

	"spendsense/internal/amqp"
	"spendsense/internal/sheets/google"
	"spendsense/internal/sheets/memory"
	"spendsense/internal/storage"
	"spendsense/internal/storage/postgres"
	"spendsense/internal/storage/sqlite"
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
		logger: logger,
	}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteStore(config)
	case PostgresBackend:
		return f.createPostgresStore(ctx, config)
	case MemoryBackend:
		return f.createMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteStore(config Config) (*StoreResult, error) {
	store, err := sqlite.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &StoreResult{Store: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createPostgresStore(ctx context.Context, config Config) (*StoreResult, error) {
	store, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}

	f.logger.Info("Initialized PostgreSQL backend")

	return &StoreResult{Store: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createMemoryStore() (*StoreResult, error) {
	store := storage.NewMemoryStore()

	f.logger.Warn("Initialized memory backend, data is lost on restart")

	return &StoreResult{Store: store, Cleanup: store.Close}, nil
}

// CreateEvents implements Factory.CreateEvents
func (f *DefaultFactory) CreateEvents(config Config) (*amqp.Client, error) {
	if !config.EventsEnabled() {
		f.logger.Info("AMQP not configured, ledger events disabled")
		return nil, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}

	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	return client, nil
}

// CreateMirror implements Factory.CreateMirror
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (Mirror, error) {
	if !config.SheetsEnabled() {
		f.logger.Warn("Google Sheets not configured, mirroring to memory")
		return memory.New(), nil
	}

	client, err := google.New(ctx, config.Sheets)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets mirror",
		"spreadsheet_id", config.Sheets.SpreadsheetID,
		"sheet", config.Sheets.SheetName)

	return client, nil
}
