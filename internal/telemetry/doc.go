// Package telemetry holds the progress primitives for distributed training
// runs: the per-worker Record type, the history index that orders each
// worker's reports, and the averager that folds ragged per-worker sequences
// into a single cross-worker curve. It also provides the non-blocking hub
// and emitter interfaces that workers use to report progress, batching
// events on a background goroutine and fanning them out to pluggable sinks
// such as Prometheus metrics or persistent storage.
package telemetry
