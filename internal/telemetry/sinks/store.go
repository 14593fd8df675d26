package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
)

// StoreSink persists progress records via a store.RunRepository. It groups
// each batch per run to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume groups records per run and forwards them to the repository. It
// respects ctx deadlines and returns any repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []telemetry.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	grouped := make(map[uuid.UUID][]telemetry.Record)
	latest := make(map[uuid.UUID]time.Time)
	for _, evt := range batch {
		runID := evt.RunUUID()
		grouped[runID] = append(grouped[runID], evt.Record)
		if evt.TS.After(latest[runID]) {
			latest[runID] = evt.TS
		}
	}
	for runID, records := range grouped {
		if err := s.repo.InsertRecords(ctx, runID, records, latest[runID]); err != nil {
			return fmt.Errorf("insert records for run %s: %w", runID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
