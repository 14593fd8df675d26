package sinks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/distml/trainwatch/internal/telemetry"
)

// SnapshotSink accumulates raw records per run in memory. The averager is
// invoked against a snapshot of whatever has been collected at that time;
// Snapshot returns an independent copy so each aggregation pass sees an
// immutable batch regardless of concurrent ingestion.
type SnapshotSink struct {
	mu   sync.RWMutex
	runs map[uuid.UUID][]telemetry.Record
}

// NewSnapshotSink constructs an empty SnapshotSink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{runs: make(map[uuid.UUID][]telemetry.Record)}
}

// Consume appends each event's record under its run.
func (s *SnapshotSink) Consume(_ context.Context, batch []telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		runID := evt.RunUUID()
		s.runs[runID] = append(s.runs[runID], evt.Record)
	}
	return nil
}

// Snapshot returns a copy of every record collected so far for the run.
// The result may be empty; the caller decides whether that is an error.
func (s *SnapshotSink) Snapshot(runID uuid.UUID) []telemetry.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.runs[runID]
	if len(records) == 0 {
		return nil
	}
	return append([]telemetry.Record(nil), records...)
}

// Runs lists the run ids with at least one collected record.
func (s *SnapshotSink) Runs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	return ids
}

// Drop discards the collected records for a finished run.
func (s *SnapshotSink) Drop(runID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
