package domain

import (
	"context"
	"time"
)

// Sink commits a generated dataset to durable storage and serves back run
// metadata. A dataset is written whole or not at all; no partial dataset is
// ever visible to readers.
type Sink interface {
	// WriteDataset persists all rows of the dataset plus its run metadata.
	WriteDataset(ctx context.Context, ds *Dataset) error

	// GetRun retrieves metadata for a specific run.
	GetRun(ctx context.Context, runID string) (*RunInfo, error)

	// LatestRun retrieves metadata for the most recent run.
	LatestRun(ctx context.Context) (*RunInfo, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SinkConfig holds configuration for sink initialization.
type SinkConfig struct {
	// Driver is the sink driver: "csv", "sqlite" or "postgres"
	Driver string

	// CSV specific: output directory for dataset files
	CSVDir string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
