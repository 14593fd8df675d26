// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// RunStore implements store.RunRepository using Postgres. Metrics vectors
// are stored as float8[] columns.
type RunStore struct {
	pool dbPool
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool; used by tests.
func NewRunStoreWithPool(pool dbPool) *RunStore {
	return &RunStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// CreateRun inserts a new run in running status.
func (s *RunStore) CreateRun(ctx context.Context, run store.Run) error {
	query := `
		INSERT INTO runs (id, name, metrics_width, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query, run.ID, run.Name, run.MetricsWidth, run.StartedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertRecords appends a batch of progress records for one run using a
// single round trip.
func (s *RunStore) InsertRecords(
	ctx context.Context,
	runID uuid.UUID,
	records []telemetry.Record,
	at time.Time,
) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO run_records (run_id, worker_id, iteration, metrics, reported_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query, runID, rec.WorkerID, rec.Iteration, rec.Metrics, at)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert run record: %w", err)
		}
	}
	return nil
}

// ListRecords loads every record reported for the run.
func (s *RunStore) ListRecords(ctx context.Context, runID uuid.UUID) ([]telemetry.Record, error) {
	query := `
		SELECT worker_id, iteration, metrics
		FROM run_records
		WHERE run_id = $1;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	var records []telemetry.Record
	for rows.Next() {
		var rec telemetry.Record
		if err := rows.Scan(&rec.WorkerID, &rec.Iteration, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}
	return records, nil
}

// GetRun loads a single run or returns store.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, name, metrics_width, started_at, finished_at, status, error_message
		FROM runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Name,
		&run.MetricsWidth,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs filtered by optional status plus limit/offset.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit, offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, name, metrics_width, started_at, finished_at, status, error_message
		FROM runs
	`
	args := []any{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(
			&run.ID,
			&run.Name,
			&run.MetricsWidth,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
