package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/metrics"
	"github.com/distml/trainwatch/internal/notify"
	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBatchRecords  = 10000
)

type createRunRequest struct {
	Name         string `json:"name"`
	MetricsWidth int    `json:"metrics_width"`
}

type runResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MetricsWidth int        `json:"metrics_width"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
}

func toRunResponse(run store.Run) runResponse {
	return runResponse{
		ID:           run.ID.String(),
		Name:         run.Name,
		MetricsWidth: run.MetricsWidth,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Status:       string(run.Status),
		Error:        run.ErrorMessage,
	}
}

// createRun registers a new training run.
// Responds 201 with the run, 400 on a bad body or width.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MetricsWidth == 0 {
		req.MetricsWidth = s.cfg.Run.MetricsWidth
	}
	if req.MetricsWidth < 0 {
		writeError(w, http.StatusBadRequest, "metrics_width must be > 0")
		return
	}
	run := store.Run{
		ID:           uuid.New(),
		Name:         req.Name,
		MetricsWidth: req.MetricsWidth,
		StartedAt:    time.Now().UTC(),
		Status:       store.RunRunning,
	}
	if err := s.repo.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}
	metrics.IncActiveRuns()
	s.logger.Info("run created",
		zap.String("run_id", run.ID.String()),
		zap.String("name", run.Name),
		zap.Int("metrics_width", run.MetricsWidth),
	)
	writeJSON(w, http.StatusCreated, toRunResponse(run))
}

// listRuns returns runs filtered by optional ?status plus ?limit/?offset.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.repo.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// getRun returns one run. Responds 404 when the run does not exist.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.repo.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

type ingestRequest struct {
	Records []telemetry.Record `json:"records"`
}

// ingestRecords accepts a batch of worker progress records for a run and
// forwards them to the hub. The whole batch is rejected with 400 when any
// record's metrics width disagrees with the run's configured width.
// Responds 202 on acceptance, 404 for an unknown run, 409 when the run is
// no longer running.
func (s *Server) ingestRecords(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.repo.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run.Status != store.RunRunning {
		writeError(w, http.StatusConflict, "run is not running")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records must not be empty")
		return
	}
	if len(req.Records) > maxBatchRecords {
		writeError(w, http.StatusBadRequest, "too many records in one batch")
		return
	}
	for _, rec := range req.Records {
		if len(rec.Metrics) != run.MetricsWidth {
			s.logger.Warn("rejecting batch on metrics width mismatch",
				zap.String("run_id", runID.String()),
				zap.Int("worker_id", rec.WorkerID),
				zap.Int("iteration", rec.Iteration),
				zap.Int("got", len(rec.Metrics)),
				zap.Int("want", run.MetricsWidth),
			)
			writeError(w, http.StatusBadRequest, (&telemetry.WidthMismatchError{
				WorkerID:  rec.WorkerID,
				Iteration: rec.Iteration,
				Got:       len(rec.Metrics),
				Want:      run.MetricsWidth,
			}).Error())
			return
		}
	}

	now := time.Now().UTC()
	binID := telemetry.UUIDToBytes(runID)
	for _, rec := range req.Records {
		s.hub.Emit(telemetry.Event{RunID: binID, TS: now, Record: rec})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Records)})
}

// getHistory computes and returns the cross-worker averaged curve from
// whatever records have been collected so far. Responds 404 for an unknown
// run and 409 when no records have arrived yet.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.repo.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	curve, err := s.computeCurve(r, run)
	if errors.Is(err, telemetry.ErrEmptyInput) {
		writeError(w, http.StatusConflict, "no records reported for run yet")
		return
	}
	if err != nil {
		s.logger.Error("history aggregation failed",
			zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to aggregate history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID.String(),
		"curve":  curve,
	})
}

// computeCurve averages the run's records, preferring the in-memory
// snapshot and falling back to the repository when the snapshot is empty
// (e.g. after a restart).
func (s *Server) computeCurve(r *http.Request, run store.Run) (telemetry.Curve, error) {
	var records []telemetry.Record
	if s.snapshots != nil {
		records = s.snapshots.Snapshot(run.ID)
	}
	if len(records) == 0 {
		var err error
		records, err = s.repo.ListRecords(r.Context(), run.ID)
		if err != nil {
			return telemetry.Curve{}, err
		}
	}

	averager, err := telemetry.NewAverager(telemetry.AveragerConfig{MetricsWidth: run.MetricsWidth})
	if err != nil {
		return telemetry.Curve{}, err
	}
	start := time.Now()
	curve, err := averager.Average(records)
	if err != nil {
		metrics.ObserveAggregation("error", time.Since(start))
		return telemetry.Curve{}, err
	}
	metrics.ObserveAggregation("success", time.Since(start))
	for _, anomaly := range curve.Anomalies {
		metrics.ObserveAnomaly(string(anomaly.Kind))
	}
	return curve, nil
}

type completeRunRequest struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// completeRun marks a run finished, exports the final averaged curve, and
// publishes a completion notification. Responds 404 for an unknown run and
// 400 for an invalid status.
func (s *Server) completeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	var req completeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var status store.RunStatus
	switch req.Status {
	case string(store.RunSuccess), "":
		status = store.RunSuccess
	case string(store.RunError):
		status = store.RunError
	default:
		writeError(w, http.StatusBadRequest, "status must be success or error")
		return
	}

	run, err := s.repo.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	finishedAt := time.Now().UTC()
	var errMsg *string
	if req.Error != "" {
		errMsg = &req.Error
	}
	if err := s.repo.CompleteRun(r.Context(), runID, finishedAt, status, errMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("complete run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete run")
		return
	}
	metrics.DecActiveRuns()
	metrics.ObserveRunCompleted(string(status))

	// Best effort: a failed export or notification does not undo completion.
	curveURI := ""
	iterations := 0
	curve, err := s.computeCurve(r, run)
	switch {
	case err == nil:
		iterations = len(curve.Points)
		uri, exportErr := s.exporter.Export(r.Context(), runID, curve)
		if exportErr != nil {
			s.logger.Warn("curve export failed",
				zap.String("run_id", runID.String()), zap.Error(exportErr))
		} else {
			curveURI = uri
		}
	case errors.Is(err, telemetry.ErrEmptyInput):
		s.logger.Info("run completed without records", zap.String("run_id", runID.String()))
	default:
		s.logger.Warn("final aggregation failed",
			zap.String("run_id", runID.String()), zap.Error(err))
	}

	if s.notifier != nil {
		_, pubErr := s.notifier.Publish(r.Context(), notify.RunCompleted{
			RunID:      runID.String(),
			Status:     string(status),
			Iterations: iterations,
			CurveURI:   curveURI,
			FinishedAt: finishedAt,
		})
		if pubErr != nil {
			s.logger.Warn("completion notification failed",
				zap.String("run_id", runID.String()), zap.Error(pubErr))
		}
	}
	if s.snapshots != nil {
		s.snapshots.Drop(runID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    runID.String(),
		"status":    string(status),
		"curve_uri": curveURI,
	})
}

func parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "run_id")
	runID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "run_id must be a UUID")
		return uuid.Nil, false
	}
	return runID, true
}

func parseStatus(raw string) (*store.RunStatus, error) {
	if raw == "" {
		return nil, nil
	}
	switch store.RunStatus(raw) {
	case store.RunRunning, store.RunSuccess, store.RunError:
		status := store.RunStatus(raw)
		return &status, nil
	default:
		return nil, errors.New("status must be running, success, or error")
	}
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			return 0, 0, errors.New("limit must be between 1 and 500")
		}
		limit = n
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must be >= 0")
		}
		offset = n
	}
	return limit, offset, nil
}
