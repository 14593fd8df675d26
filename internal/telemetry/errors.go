package telemetry

import (
	"errors"
	"fmt"
)

// ErrEmptyInput signals that an averaging pass was requested with zero
// records. The iteration and worker bounds come from the data itself, so
// there is no meaningful range to compute over.
var ErrEmptyInput = errors.New("no records to average")

// WidthMismatchError reports a record whose metrics vector disagrees with
// the run's configured width. The whole batch is rejected; silently
// truncating or padding would corrupt every downstream average.
type WidthMismatchError struct {
	WorkerID  int
	Iteration int
	Got       int
	Want      int
}

func (e *WidthMismatchError) Error() string {
	return fmt.Sprintf("metrics width mismatch for worker %d iteration %d: got %d, want %d",
		e.WorkerID, e.Iteration, e.Got, e.Want)
}

// AnomalyKind classifies recoverable per-record or per-iteration anomalies
// that annotate a curve instead of aborting the pass.
type AnomalyKind string

// Supported anomaly kinds.
const (
	// AnomalyZeroContributors marks an iteration index at which no worker
	// has a sequence entry. The point is emitted flagged rather than
	// averaged, so one malformed iteration does not discard the curve.
	AnomalyZeroContributors AnomalyKind = "ZERO_CONTRIBUTORS"
	// AnomalyDuplicateIteration marks two records from the same worker
	// sharing an iteration value. Order between them is arbitrary but
	// stable; computation proceeds.
	AnomalyDuplicateIteration AnomalyKind = "DUPLICATE_ITERATION"
)

// Anomaly annotates one recoverable oddity observed during aggregation.
type Anomaly struct {
	Kind AnomalyKind `json:"kind"`
	// WorkerID is the offending worker for duplicate iterations, or -1
	// when the anomaly is not attributable to a single worker.
	WorkerID int `json:"worker_id"`
	// Iteration is the duplicated iteration value, or the flagged
	// position index for zero-contributor anomalies.
	Iteration int `json:"iteration"`
}
