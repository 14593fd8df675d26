package telemetry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAverager(t *testing.T, width int) *Averager {
	t.Helper()
	avg, err := NewAverager(AveragerConfig{MetricsWidth: width})
	require.NoError(t, err)
	return avg
}

// TestNewAveragerRejectsNonPositiveWidth ensures the width is an explicit
// configuration constant, never defaulted.
func TestNewAveragerRejectsNonPositiveWidth(t *testing.T) {
	t.Parallel()

	_, err := NewAverager(AveragerConfig{})
	require.Error(t, err)
	_, err = NewAverager(AveragerConfig{MetricsWidth: -2})
	require.Error(t, err)
}

// TestAverageEmptyInputRejected verifies zero records fail fast instead of
// silently returning an empty curve.
func TestAverageEmptyInputRejected(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 2)
	_, err := avg.Average(nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

// TestAverageTwoWorkersPositionZero checks per-iteration averaging: two
// workers at position 0 with [1,2] and [3,4] average to [2,3].
func TestAverageTwoWorkersPositionZero(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 2)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1.0, 2.0}},
		{WorkerID: 1, Iteration: 0, Metrics: []float64{3.0, 4.0}},
	})
	require.NoError(t, err)
	require.Len(t, curve.Points, 1)
	require.Equal(t, []float64{2.0, 3.0}, curve.Points[0].Metrics)
	require.Equal(t, 2, curve.Points[0].Contributors)
	require.Empty(t, curve.Anomalies)
}

// TestAverageUnevenParticipation verifies the denominator shrinks to the
// count of workers that reached each position, never the total worker count.
func TestAverageUnevenParticipation(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 2)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1, 1}},
		{WorkerID: 0, Iteration: 1, Metrics: []float64{2, 2}},
		{WorkerID: 0, Iteration: 2, Metrics: []float64{3, 3}},
		{WorkerID: 1, Iteration: 0, Metrics: []float64{3, 3}},
	})
	require.NoError(t, err)
	require.Len(t, curve.Points, 3)

	require.Equal(t, 2, curve.Points[0].Contributors)
	require.Equal(t, []float64{2, 2}, curve.Points[0].Metrics)

	require.Equal(t, 1, curve.Points[1].Contributors)
	require.Equal(t, []float64{2, 2}, curve.Points[1].Metrics)

	require.Equal(t, 1, curve.Points[2].Contributors)
	require.Equal(t, []float64{3, 3}, curve.Points[2].Metrics)
}

// TestAverageOrderIndependence permutes the input and expects bit-identical
// output.
func TestAverageOrderIndependence(t *testing.T) {
	t.Parallel()

	records := []Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1, 2}},
		{WorkerID: 0, Iteration: 1, Metrics: []float64{2, 3}},
		{WorkerID: 1, Iteration: 0, Metrics: []float64{5, 6}},
		{WorkerID: 1, Iteration: 1, Metrics: []float64{6, 7}},
		{WorkerID: 2, Iteration: 0, Metrics: []float64{9, 1}},
	}
	avg := newTestAverager(t, 2)
	want, err := avg.Average(records)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]Record(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, err := avg.Average(shuffled)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

// TestAverageDeterminism runs the same pass twice on the same slice.
func TestAverageDeterminism(t *testing.T) {
	t.Parallel()

	records := []Record{
		{WorkerID: 1, Iteration: 1, Metrics: []float64{4, 5}},
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1, 2}},
		{WorkerID: 1, Iteration: 0, Metrics: []float64{3, 4}},
	}
	avg := newTestAverager(t, 2)
	first, err := avg.Average(records)
	require.NoError(t, err)
	second, err := avg.Average(records)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// TestAverageWidthMismatchRejectsBatch asserts one bad record fails the
// whole batch with context identifying the offender.
func TestAverageWidthMismatchRejectsBatch(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 2)
	_, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1, 2}},
		{WorkerID: 3, Iteration: 4, Metrics: []float64{1, 2, 3}},
	})
	var mismatch *WidthMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 3, mismatch.WorkerID)
	require.Equal(t, 4, mismatch.Iteration)
	require.Equal(t, 3, mismatch.Got)
	require.Equal(t, 2, mismatch.Want)
}

// TestAverageMissingWorkerIdentity checks a hole in the id range contributes
// nothing, with no synthetic zeros from the absent worker.
func TestAverageMissingWorkerIdentity(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 1)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{2}},
		{WorkerID: 2, Iteration: 0, Metrics: []float64{4}},
	})
	require.NoError(t, err)
	require.Len(t, curve.Points, 1)
	require.Equal(t, 2, curve.Points[0].Contributors)
	require.Equal(t, []float64{3}, curve.Points[0].Metrics)
}

// TestAverageSingleWorker verifies the degenerate case: the averaged curve
// is the worker's own metrics sequence.
func TestAverageSingleWorker(t *testing.T) {
	t.Parallel()

	records := []Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{0.9, 0.1}},
		{WorkerID: 0, Iteration: 1, Metrics: []float64{0.7, 0.3}},
		{WorkerID: 0, Iteration: 2, Metrics: []float64{0.5, 0.5}},
	}
	avg := newTestAverager(t, 2)
	curve, err := avg.Average(records)
	require.NoError(t, err)
	require.Len(t, curve.Points, 3)
	for i, p := range curve.Points {
		require.Equal(t, records[i].Metrics, p.Metrics)
		require.Equal(t, 1, p.Contributors)
	}
}

// TestAveragePositionalAlignment checks alignment is by position in each
// worker's sorted sequence, not by matching iteration values. Worker 1's
// local counter starts at 10; its first report still averages with worker
// 0's first report at position 0.
func TestAveragePositionalAlignment(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 1)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1}},
		{WorkerID: 0, Iteration: 1, Metrics: []float64{2}},
		{WorkerID: 1, Iteration: 10, Metrics: []float64{3}},
		{WorkerID: 1, Iteration: 11, Metrics: []float64{5}},
	})
	require.NoError(t, err)
	// maxIteration derives from the highest iteration value observed.
	require.Len(t, curve.Points, 12)

	require.Equal(t, []float64{2}, curve.Points[0].Metrics)
	require.Equal(t, 2, curve.Points[0].Contributors)
	require.Equal(t, []float64{3.5}, curve.Points[1].Metrics)
	require.Equal(t, 2, curve.Points[1].Contributors)

	// Positions past every sequence length are flagged, never divided.
	for _, p := range curve.Points[2:] {
		require.Zero(t, p.Contributors)
		require.Nil(t, p.Metrics)
	}
	flagged := 0
	for _, a := range curve.Anomalies {
		if a.Kind == AnomalyZeroContributors {
			flagged++
		}
	}
	require.Equal(t, 10, flagged)
}

// TestAverageDuplicateIterationAnnotated verifies duplicates warn without
// aborting the pass.
func TestAverageDuplicateIterationAnnotated(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 1)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 0, Metrics: []float64{1}},
		{WorkerID: 0, Iteration: 0, Metrics: []float64{9}},
	})
	require.NoError(t, err)
	require.Len(t, curve.Points, 1)
	require.Len(t, curve.Anomalies, 1)
	require.Equal(t, AnomalyDuplicateIteration, curve.Anomalies[0].Kind)
}

// TestAverageCurveLengthMatchesBound asserts the output length always
// equals the derived maxIteration.
func TestAverageCurveLengthMatchesBound(t *testing.T) {
	t.Parallel()

	avg := newTestAverager(t, 1)
	curve, err := avg.Average([]Record{
		{WorkerID: 0, Iteration: 7, Metrics: []float64{1}},
	})
	require.NoError(t, err)
	require.Len(t, curve.Points, 8)
}
