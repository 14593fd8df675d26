// Package monitor periodically averages every active run and logs a
// progress line, giving operators a live view without polling the API.
package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/metrics"
	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
	"github.com/distml/trainwatch/internal/telemetry/sinks"
)

// Monitor drives the periodic aggregation pass.
type Monitor struct {
	snapshots *sinks.SnapshotSink
	repo      store.RunRepository
	interval  time.Duration
	logger    *zap.Logger
}

// New constructs a Monitor. The interval must be positive.
func New(snapshots *sinks.SnapshotSink, repo store.RunRepository, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		snapshots: snapshots,
		repo:      repo,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks, sweeping every active run once per interval, until the
// context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep averages each run with collected records exactly once.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, runID := range m.snapshots.Runs() {
		if ctx.Err() != nil {
			return
		}
		run, err := m.repo.GetRun(ctx, runID)
		if err != nil {
			m.logger.Warn("monitor could not load run",
				zap.String("run_id", runID.String()), zap.Error(err))
			continue
		}
		if run.Status != store.RunRunning {
			continue
		}

		records := m.snapshots.Snapshot(runID)
		averager, err := telemetry.NewAverager(telemetry.AveragerConfig{MetricsWidth: run.MetricsWidth})
		if err != nil {
			m.logger.Warn("monitor skipping run with invalid metrics width",
				zap.String("run_id", runID.String()), zap.Error(err))
			continue
		}

		start := time.Now()
		curve, err := averager.Average(records)
		if err != nil {
			if !errors.Is(err, telemetry.ErrEmptyInput) {
				metrics.ObserveAggregation("error", time.Since(start))
				m.logger.Warn("monitor aggregation failed",
					zap.String("run_id", runID.String()), zap.Error(err))
			}
			continue
		}
		metrics.ObserveAggregation("success", time.Since(start))
		for _, anomaly := range curve.Anomalies {
			metrics.ObserveAnomaly(string(anomaly.Kind))
		}

		latest := latestAveragedPoint(curve)
		fields := []zap.Field{
			zap.String("run_id", runID.String()),
			zap.Int("points", len(curve.Points)),
			zap.Int("records", len(records)),
			zap.Int("anomalies", len(curve.Anomalies)),
		}
		if latest != nil {
			fields = append(fields,
				zap.Int("latest_iteration", latest.Iteration),
				zap.Float64s("latest_metrics", latest.Metrics),
				zap.Int("contributors", latest.Contributors),
			)
		}
		m.logger.Info("run progress", fields...)
	}
}

// latestAveragedPoint returns the highest-index point that actually had
// contributors, or nil when every point was flagged.
func latestAveragedPoint(curve telemetry.Curve) *telemetry.Point {
	for i := len(curve.Points) - 1; i >= 0; i-- {
		if curve.Points[i].Contributors > 0 {
			return &curve.Points[i]
		}
	}
	return nil
}
