package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
)

func TestRunStoreCreateRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	now := time.Unix(1700000000, 0).UTC()
	run := store.Run{
		ID:           uuid.New(),
		Name:         "mnist-baseline",
		MetricsWidth: 2,
		StartedAt:    now,
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.ID, run.Name, run.MetricsWidth, run.StartedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreCompleteRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	now := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE runs").
		WithArgs(now, store.RunSuccess, nil, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.CompleteRun(context.Background(), runID, now, store.RunSuccess, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreInsertRecordsBatches(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	now := time.Unix(1700000200, 0).UTC()
	records := []telemetry.Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{0.9, 0.1}},
		{WorkerID: 1, Iteration: 0, Metrics: []float64{0.8, 0.2}},
	}

	batch := mock.ExpectBatch()
	for _, rec := range records {
		batch.ExpectExec("INSERT INTO run_records").
			WithArgs(runID, rec.WorkerID, rec.Iteration, rec.Metrics, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, s.InsertRecords(context.Background(), runID, records, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()

	rows := pgxmock.NewRows([]string{"worker_id", "iteration", "metrics"}).
		AddRow(0, 0, []float64{0.9, 0.1}).
		AddRow(1, 0, []float64{0.8, 0.2})
	mock.ExpectQuery("SELECT worker_id, iteration, metrics").
		WithArgs(runID).
		WillReturnRows(rows)

	records, err := s.ListRecords(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []float64{0.8, 0.2}, records[1].Metrics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()

	mock.ExpectQuery("SELECT id, name, metrics_width").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "metrics_width", "started_at", "finished_at", "status", "error_message",
		}))

	_, err = s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunsWithStatusFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRunStoreWithPool(mock)
	runID := uuid.New()
	now := time.Unix(1700000300, 0).UTC()
	status := store.RunRunning

	rows := pgxmock.NewRows([]string{
		"id", "name", "metrics_width", "started_at", "finished_at", "status", "error_message",
	}).AddRow(runID, "mnist-baseline", 2, now, nil, store.RunRunning, nil)
	mock.ExpectQuery("SELECT id, name, metrics_width").
		WithArgs(status, 50, 0).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), &status, 50, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "mnist-baseline", runs[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
