// Package artifact defines the store for crawl and run artifacts
// (screenshots, video frames, diff images).
package artifact

import (
	"context"
	"fmt"
	"strings"
)

// Key addresses one artifact within a project run.
type Key struct {
	Project string
	Run     string
	Name    string
}

// Path renders the object path for the key under an optional prefix.
func (k Key) Path(prefix string) string {
	parts := []string{k.Project, k.Run, k.Name}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// Validate rejects keys that would produce ambiguous object paths.
func (k Key) Validate() error {
	if k.Project == "" || k.Run == "" || k.Name == "" {
		return fmt.Errorf("artifact key requires project, run, and name")
	}
	return nil
}

// Store persists artifact bytes and returns a URI. The crawl engine and the
// runner only ever write; nothing in this service reads artifacts back.
type Store interface {
	Save(ctx context.Context, key Key, contentType string, data []byte) (string, error)
}
