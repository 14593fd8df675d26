// Package export writes averaged-curve artifacts to blob storage. The
// abstraction keeps the service independent of a specific backend (Google
// Cloud Storage, the local filesystem, or nothing at all).
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/telemetry"
)

// BlobStore abstracts writing one artifact and returning its URI.
type BlobStore interface {
	Put(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// NoopStore discards artifacts; useful for dry runs and tests.
type NoopStore struct{}

// Put for NoopStore does nothing and returns an empty URI.
func (NoopStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

// curveArtifact is the JSON document written per completed run.
type curveArtifact struct {
	RunID      string          `json:"run_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Curve      telemetry.Curve `json:"curve"`
}

// CurveExporter serializes averaged curves and hands them to a BlobStore.
type CurveExporter struct {
	blobs  BlobStore
	prefix string
	logger *zap.Logger
}

// NewCurveExporter wires a blob store and an object prefix.
func NewCurveExporter(blobs BlobStore, prefix string, logger *zap.Logger) *CurveExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurveExporter{blobs: blobs, prefix: prefix, logger: logger}
}

// Export writes the curve as JSON under <prefix>/<run_id>.json and returns
// the artifact URI.
func (e *CurveExporter) Export(ctx context.Context, runID uuid.UUID, curve telemetry.Curve) (string, error) {
	if e == nil || e.blobs == nil {
		return "", nil
	}
	artifact := curveArtifact{
		RunID:      runID.String(),
		ExportedAt: time.Now().UTC(),
		Curve:      curve,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal curve artifact: %w", err)
	}
	name := path.Join(e.prefix, runID.String()+".json")
	uri, err := e.blobs.Put(ctx, name, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("put curve artifact: %w", err)
	}
	if uri != "" {
		e.logger.Info("exported averaged curve",
			zap.String("run_id", runID.String()),
			zap.String("uri", uri),
			zap.Int("points", len(curve.Points)),
		)
	}
	return uri, nil
}
