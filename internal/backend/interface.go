package backend

import (
	"context"

	"spendsense/internal/amqp"
	"spendsense/internal/sheets"
	"spendsense/internal/sheets/google"
	"spendsense/internal/storage"
)

// Mirror is what the worker writes ledger rows to.
type Mirror interface {
	sheets.LedgerMirror
	sheets.RowLister
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult contains the store and its cleanup function
type StoreResult struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

// Factory creates the pluggable pieces of the ledger from configuration
type Factory interface {
	// CreateStore opens the key-value store selected by config.Type.
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
	// CreateEvents connects to the broker. It returns nil, nil when events are disabled.
	CreateEvents(config Config) (*amqp.Client, error)
	// CreateMirror returns the Google Sheets mirror when configured, otherwise an in-memory one.
	CreateMirror(ctx context.Context, config Config) (Mirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	PostgresDSN string

	// Ledger events, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror, optional
	Sheets google.Config
}

// EventsEnabled reports whether a broker URL is configured.
func (c Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether a spreadsheet is configured for the mirror.
func (c Config) SheetsEnabled() bool {
	return c.Sheets.SpreadsheetID != ""
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
