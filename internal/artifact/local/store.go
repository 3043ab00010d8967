// Package local implements the artifact store on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skyhookqa/skyhook/internal/artifact"
)

// Store writes artifacts under a base directory.
type Store struct {
	baseDir string
	prefix  string
}

// New creates the base directory if needed and verifies it is writable.
func New(baseDir, prefix string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Store{baseDir: baseDir, prefix: prefix}, nil
}

// Save writes the artifact to disk and returns a file:// URI.
func (s *Store) Save(_ context.Context, key artifact.Key, _ string, data []byte) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	rel := filepath.FromSlash(key.Path(s.prefix))
	full := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", rel, err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
