package telemetry

// AveragerConfig carries the run-level constants for an averaging pass.
type AveragerConfig struct {
	// MetricsWidth is the required width of every record's metrics vector.
	// It is supplied once per run, never auto-detected from the data.
	MetricsWidth int
}

// Point is one entry of the averaged curve.
type Point struct {
	// Iteration is the position index of this point, 0-based.
	Iteration int `json:"iteration"`
	// Metrics is the element-wise average across contributors, or nil when
	// the point had zero contributors and was flagged instead.
	Metrics []float64 `json:"metrics,omitempty"`
	// Contributors counts the workers whose sequences reached this
	// position. It shrinks as shorter worker histories run out.
	Contributors int `json:"contributors"`
}

// Curve is the averaged cross-worker progress sequence, one point per
// iteration index, annotated with any recoverable anomalies.
type Curve struct {
	Points    []Point   `json:"points"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// Averager folds ragged per-worker record sequences into one averaged
// curve. It carries no state between calls: each Average invocation is an
// independent, idempotent computation over the snapshot it is given.
type Averager struct {
	width int
}

// NewAverager validates the config and returns an Averager.
func NewAverager(cfg AveragerConfig) (*Averager, error) {
	if cfg.MetricsWidth <= 0 {
		return nil, &WidthMismatchError{Got: cfg.MetricsWidth, Want: 1}
	}
	return &Averager{width: cfg.MetricsWidth}, nil
}

// Average computes the cross-worker averaged curve for iteration indices
// 0..maxIteration-1, where maxIteration is one past the highest iteration
// value in the input.
//
// Alignment is by position in each worker's own sorted sequence, not by the
// literal iteration value. Workers do not share a global iteration clock:
// the i-th point averages every worker's i-th report, however its local
// counter numbered it. The denominator at each position is the count of
// workers whose sequence reaches that position, not the total worker count.
//
// Empty input returns ErrEmptyInput. A record whose metrics width disagrees
// with the configured width rejects the whole batch with a
// *WidthMismatchError. A position with zero contributors is emitted flagged
// (nil metrics) and annotated, never divided.
func (a *Averager) Average(records []Record) (Curve, error) {
	if len(records) == 0 {
		return Curve{}, ErrEmptyInput
	}
	for _, r := range records {
		if len(r.Metrics) != a.width {
			return Curve{}, &WidthMismatchError{
				WorkerID:  r.WorkerID,
				Iteration: r.Iteration,
				Got:       len(r.Metrics),
				Want:      a.width,
			}
		}
	}

	ix := NewHistoryIndex(records)
	curve := Curve{
		Points:    make([]Point, 0, ix.MaxIteration()),
		Anomalies: ix.Duplicates(),
	}
	for i := 0; i < ix.MaxIteration(); i++ {
		sum := make([]float64, a.width)
		contributors := 0
		for id := 0; id < ix.MaxWorker(); id++ {
			seq := ix.Worker(id)
			if len(seq) <= i {
				continue
			}
			contributors++
			for k, v := range seq[i].Metrics {
				sum[k] += v
			}
		}
		if contributors == 0 {
			// Reachable when a worker skips iteration values: the bound
			// grows past every sequence length. Flag instead of dividing.
			curve.Anomalies = append(curve.Anomalies, Anomaly{
				Kind:      AnomalyZeroContributors,
				WorkerID:  -1,
				Iteration: i,
			})
			curve.Points = append(curve.Points, Point{Iteration: i})
			continue
		}
		for k := range sum {
			sum[k] /= float64(contributors)
		}
		curve.Points = append(curve.Points, Point{
			Iteration:    i,
			Metrics:      sum,
			Contributors: contributors,
		})
	}
	return curve, nil
}
