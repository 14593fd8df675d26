package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes artifacts to the local filesystem.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a filesystem-backed blob store rooted at baseDir.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put writes data to a file under the base directory and returns a file://
// URI. Subdirectories in the object name are created as needed.
func (s *LocalStore) Put(_ context.Context, objectName, _ string, data []byte) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("object name is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return "file://" + full, nil
}
