package telemetry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is one progress sample reported by one worker.
type Record struct {
	// WorkerID identifies the reporting worker. Workers are numbered from
	// zero but identities need not be contiguous; a worker that never
	// reports simply contributes nothing.
	WorkerID int `json:"worker_id"`
	// Iteration is the worker-local sequence number of this report. It is
	// not synchronized across workers and may skip values.
	Iteration int `json:"iteration"`
	// Metrics is the fixed-width numeric vector for this step, e.g.
	// [loss, accuracy]. The width is a run-level constant.
	Metrics []float64 `json:"metrics"`
}

// Event wraps a Record with the run it belongs to and the time it was
// received. Events flow through the Hub; Records are what the averager
// consumes.
type Event struct {
	// RunID uniquely identifies a training run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Record is the reported progress sample.
	Record Record
}

// Validate performs coarse validation on Event payloads. Width checking
// against the run configuration happens at aggregation time, not here.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Record.WorkerID < 0 {
		return errors.New("worker id must be >= 0")
	}
	if e.Record.Iteration < 0 {
		return errors.New("iteration must be >= 0")
	}
	if len(e.Record.Metrics) == 0 {
		return errors.New("metrics vector is required")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
