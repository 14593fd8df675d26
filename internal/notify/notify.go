// Package notify publishes run-completion notifications so downstream
// consumers (dashboards, schedulers) can react without polling the API.
package notify

import (
	"context"
	"sync"
	"time"
)

// RunCompleted is the payload published when a run finishes.
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Iterations int       `json:"iterations"`
	CurveURI   string    `json:"curve_uri,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notifier publishes run lifecycle notifications.
type Notifier interface {
	Publish(ctx context.Context, evt RunCompleted) (string, error)
	Close() error
}

// Noop discards notifications.
type Noop struct{}

// Publish for Noop does nothing and returns an empty message id.
func (Noop) Publish(context.Context, RunCompleted) (string, error) {
	return "", nil
}

// Close for Noop does nothing.
func (Noop) Close() error {
	return nil
}

// Recorder keeps published notifications in memory; used in tests and
// development.
type Recorder struct {
	mu     sync.Mutex
	events []RunCompleted
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the event and returns a synthetic id.
func (r *Recorder) Publish(_ context.Context, evt RunCompleted) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return evt.RunID, nil
}

// Close implements Notifier; it performs no action.
func (r *Recorder) Close() error {
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []RunCompleted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunCompleted(nil), r.events...)
}
