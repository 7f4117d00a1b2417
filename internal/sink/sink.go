// Package sink provides dataset persistence implementations.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// New creates a sink based on configuration.
func New(cfg domain.SinkConfig) (domain.Sink, error) {
	switch cfg.Driver {
	case "csv":
		return NewCSVSink(cfg.CSVDir)
	case "sqlite", "postgres":
		return newSQLSink(cfg)
	default:
		return nil, fmt.Errorf("unsupported sink driver: %s", cfg.Driver)
	}
}

// SQLSink implements domain.Sink using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLSink struct {
	db     *sql.DB
	driver string
}

func newSQLSink(cfg domain.SinkConfig) (*SQLSink, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLSink{
		db:     db,
		driver: cfg.Driver,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLSink) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// WriteDataset persists the dataset's rows and run metadata in one
// transaction: either the whole dataset commits or nothing does.
func (s *SQLSink) WriteDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.RunID == "" {
		return fmt.Errorf("%w: dataset with run id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `
		INSERT INTO runs (id, seed, row_count, threshold, fraud_rate, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, s.rebind(runQuery),
		ds.RunID, int64(ds.Seed), len(ds.Events), ds.Threshold, ds.FraudRate, ds.GeneratedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	rowQuery := `
		INSERT INTO transactions (
			run_id, customer_id, timestamp, amount, old_balance, new_balance,
			merchant, category, location, age, gender, transaction_type, is_fraud
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, s.rebind(rowQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range ds.Events {
		if _, err := stmt.ExecContext(ctx,
			ds.RunID, e.CustomerID, e.Timestamp, e.Amount, e.OldBalance, e.NewBalance,
			e.Merchant, e.Category, e.Location, e.Age, e.Gender, e.TransactionType, e.IsFraud,
		); err != nil {
			return fmt.Errorf("failed to insert transaction row: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves run metadata by ID.
func (s *SQLSink) GetRun(ctx context.Context, runID string) (*domain.RunInfo, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, seed, row_count, threshold, fraud_rate, generated_at
		FROM runs
		WHERE id = ?
	`
	return s.scanRun(s.db.QueryRowContext(ctx, s.rebind(query), runID))
}

// LatestRun retrieves the most recent run's metadata.
func (s *SQLSink) LatestRun(ctx context.Context) (*domain.RunInfo, error) {
	query := `
		SELECT id, seed, row_count, threshold, fraud_rate, generated_at
		FROM runs
		ORDER BY generated_at DESC
		LIMIT 1
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query))
}

func (s *SQLSink) scanRun(row *sql.Row) (*domain.RunInfo, error) {
	var info domain.RunInfo
	var seed int64

	err := row.Scan(&info.RunID, &seed, &info.Rows, &info.Threshold, &info.FraudRate, &info.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	info.Seed = uint64(seed)
	return &info, nil
}

// Ping checks database connectivity.
func (s *SQLSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLSink) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
