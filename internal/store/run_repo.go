// Package store declares interfaces for persisting training runs and their
// progress records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/distml/trainwatch/internal/telemetry"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one training run for API responses.
type Run struct {
	// ID is the run identifier shared with workers.
	ID uuid.UUID
	// Name is an operator-supplied label.
	Name string
	// MetricsWidth is the configured metrics vector width for the run.
	MetricsWidth int
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// RunRepository persists runs and their raw progress records.
type RunRepository interface {
	// CreateRun inserts a new run in running status.
	CreateRun(ctx context.Context, run Run) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// InsertRecords appends a batch of progress records for one run.
	InsertRecords(ctx context.Context, runID uuid.UUID, records []telemetry.Record, at time.Time) error
	// ListRecords returns every record reported for the run, in no
	// particular order; the aggregator sorts for itself.
	ListRecords(ctx context.Context, runID uuid.UUID) ([]telemetry.Record, error)

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
