// Package sinks implements concrete telemetry consumers: Prometheus
// collectors, repository-backed storage, an in-memory snapshot used by the
// aggregation passes, and structured logging. Each sink satisfies the
// telemetry.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
