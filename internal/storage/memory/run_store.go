// Package memory provides an in-memory RunRepository for development and
// testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
)

// RunStore keeps runs and records in process memory behind a mutex.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]store.Run
	records map[uuid.UUID][]telemetry.Record
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[uuid.UUID]store.Run),
		records: make(map[uuid.UUID][]telemetry.Record),
	}
}

// CreateRun stores a new run in running status. Creating the same id twice
// is idempotent, mirroring the Postgres upsert.
func (s *RunStore) CreateRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil
	}
	run.Status = store.RunRunning
	s.runs[run.ID] = run
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// InsertRecords appends the batch under the run.
func (s *RunStore) InsertRecords(
	_ context.Context,
	runID uuid.UUID,
	records []telemetry.Record,
	_ time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[runID] = append(s.records[runID], records...)
	return nil
}

// ListRecords returns a copy of every record reported for the run.
func (s *RunStore) ListRecords(_ context.Context, runID uuid.UUID) ([]telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[runID]
	if len(records) == 0 {
		return nil, nil
	}
	return append([]telemetry.Record(nil), records...), nil
}

// GetRun loads a single run or returns store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, filtered by optional status.
func (s *RunStore) ListRuns(
	_ context.Context,
	status *store.RunStatus,
	limit, offset int,
) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
