package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/distml/trainwatch/internal/telemetry"
)

// PrometheusSink exports telemetry ingestion metrics. It owns the collectors
// for record counts, reporting workers, and batch sizes.
type PrometheusSink struct {
	recordsTotal  *prometheus.CounterVec
	workersActive *prometheus.GaugeVec
	lastIteration *prometheus.GaugeVec
	batchSize     prometheus.Histogram

	tracker *workerTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainwatch_records_total",
			Help: "Progress records ingested partitioned by run.",
		}, []string{"run"}),
		workersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainwatch_run_workers",
			Help: "Distinct workers that have reported for a run.",
		}, []string{"run"}),
		lastIteration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainwatch_worker_last_iteration",
			Help: "Highest iteration reported per run and worker.",
		}, []string{"run", "worker"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trainwatch_ingest_batch_size",
			Help:    "Events per flushed hub batch.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
		tracker: newWorkerTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.recordsTotal,
		s.workersActive,
		s.lastIteration,
		s.batchSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register telemetry collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for each event in the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []telemetry.Event) error {
	s.batchSize.Observe(float64(len(batch)))
	for _, evt := range batch {
		run := evt.RunUUID()
		runLabel := run.String()
		s.recordsTotal.WithLabelValues(runLabel).Inc()
		if s.tracker.observe(run, evt.Record.WorkerID) {
			s.workersActive.WithLabelValues(runLabel).Inc()
		}
		s.lastIteration.
			WithLabelValues(runLabel, strconv.Itoa(evt.Record.WorkerID)).
			Set(float64(evt.Record.Iteration))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// workerTracker remembers which (run, worker) pairs have been seen so the
// workers gauge only increments on first sight.
type workerTracker struct {
	mu   sync.Mutex
	seen map[uuid.UUID]map[int]struct{}
}

func newWorkerTracker() *workerTracker {
	return &workerTracker{seen: make(map[uuid.UUID]map[int]struct{})}
}

func (t *workerTracker) observe(run uuid.UUID, worker int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	workers := t.seen[run]
	if workers == nil {
		workers = make(map[int]struct{})
		t.seen[run] = workers
	}
	if _, ok := workers[worker]; ok {
		return false
	}
	workers[worker] = struct{}{}
	return true
}
