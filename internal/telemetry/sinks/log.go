package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/telemetry"
)

// LogSink emits structured logs for debugging telemetry streams. It is
// useful during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []telemetry.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress record",
			zap.String("run_id", evt.RunUUID().String()),
			zap.Int("worker_id", evt.Record.WorkerID),
			zap.Int("iteration", evt.Record.Iteration),
			zap.Float64s("metrics", evt.Record.Metrics),
			zap.Time("ts", evt.TS),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
