package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/distml/trainwatch/internal/telemetry"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, objectName, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = append([]byte(nil), data...)
	return "mem://" + objectName, nil
}

// TestCurveExporterWritesArtifact round-trips a curve through the exporter.
func TestCurveExporterWritesArtifact(t *testing.T) {
	t.Parallel()

	blobs := newMemStore()
	exporter := NewCurveExporter(blobs, "curves", nil)
	runID := uuid.New()
	curve := telemetry.Curve{
		Points: []telemetry.Point{
			{Iteration: 0, Metrics: []float64{0.5, 0.9}, Contributors: 2},
		},
	}

	uri, err := exporter.Export(context.Background(), runID, curve)
	require.NoError(t, err)
	require.Equal(t, "mem://curves/"+runID.String()+".json", uri)

	var artifact struct {
		RunID string          `json:"run_id"`
		Curve telemetry.Curve `json:"curve"`
	}
	require.NoError(t, json.Unmarshal(blobs.objects["curves/"+runID.String()+".json"], &artifact))
	require.Equal(t, runID.String(), artifact.RunID)
	require.Equal(t, curve.Points, artifact.Curve.Points)
}

// TestCurveExporterNoopStore keeps export optional.
func TestCurveExporterNoopStore(t *testing.T) {
	t.Parallel()

	exporter := NewCurveExporter(NoopStore{}, "curves", nil)
	uri, err := exporter.Export(context.Background(), uuid.New(), telemetry.Curve{})
	require.NoError(t, err)
	require.Empty(t, uri)
}

// TestLocalStorePut writes through to the filesystem.
func TestLocalStorePut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blobs, err := NewLocalStore(dir)
	require.NoError(t, err)

	uri, err := blobs.Put(context.Background(), "curves/run.json", "application/json", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "curves", "run.json"))
	require.NoError(t, err)
	require.Equal(t, []byte(`{}`), data)
}

// TestLocalStoreRequiresBaseDir rejects empty configuration.
func TestLocalStoreRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore("  ")
	require.Error(t, err)
}
