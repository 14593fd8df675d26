// Package api hosts the HTTP server, middleware, and REST handlers for
// worker reporting and operator access. Notable routes:
//   - GET /healthz / readyz for orchestrator probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs and /v1/runs/{run_id}/complete for run lifecycle.
//   - POST /v1/runs/{run_id}/records for worker progress ingestion.
//   - GET /v1/runs/{run_id}/history for the cross-worker averaged curve.
package api
