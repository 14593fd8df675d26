package telemetry

import (
	"cmp"
	"slices"
)

// HistoryIndex groups an unordered record collection by worker and keeps
// each worker's sequence sorted ascending by iteration. Input order is not
// trusted; the index sorts to establish it. Building the index is a pure
// transform: the input slice is never mutated.
type HistoryIndex struct {
	byWorker     map[int][]Record
	maxWorker    int
	maxIteration int
	duplicates   []Anomaly
}

// NewHistoryIndex partitions records by worker and sorts every sequence.
// The sort is stable, so two records sharing an iteration value keep their
// relative input order; such pairs are recorded as duplicate anomalies.
func NewHistoryIndex(records []Record) *HistoryIndex {
	ix := &HistoryIndex{byWorker: make(map[int][]Record)}
	for _, r := range records {
		ix.byWorker[r.WorkerID] = append(ix.byWorker[r.WorkerID], r)
		if r.WorkerID+1 > ix.maxWorker {
			ix.maxWorker = r.WorkerID + 1
		}
		if r.Iteration+1 > ix.maxIteration {
			ix.maxIteration = r.Iteration + 1
		}
	}
	// Walk worker ids in order so the anomaly list is deterministic.
	for id := 0; id < ix.maxWorker; id++ {
		seq := ix.byWorker[id]
		if len(seq) == 0 {
			continue
		}
		slices.SortStableFunc(seq, func(a, b Record) int {
			return cmp.Compare(a.Iteration, b.Iteration)
		})
		for j := 1; j < len(seq); j++ {
			if seq[j].Iteration == seq[j-1].Iteration {
				ix.duplicates = append(ix.duplicates, Anomaly{
					Kind:      AnomalyDuplicateIteration,
					WorkerID:  id,
					Iteration: seq[j].Iteration,
				})
			}
		}
	}
	return ix
}

// Worker returns the sorted sequence for the given worker id. A worker that
// never reported yields an empty sequence, not an error. The returned slice
// is shared with the index and must not be mutated by callers.
func (ix *HistoryIndex) Worker(id int) []Record {
	return ix.byWorker[id]
}

// MaxWorker is one past the highest worker identity observed, or 0 for an
// empty index.
func (ix *HistoryIndex) MaxWorker() int {
	return ix.maxWorker
}

// MaxIteration is one past the highest iteration value observed, or 0 for
// an empty index.
func (ix *HistoryIndex) MaxIteration() int {
	return ix.maxIteration
}

// Duplicates lists the duplicate-iteration anomalies found while sorting,
// ordered by worker id then iteration.
func (ix *HistoryIndex) Duplicates() []Anomaly {
	return ix.duplicates
}
