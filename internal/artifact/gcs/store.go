// Package gcs implements the artifact store on Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/skyhookqa/skyhook/internal/artifact"
)

// Store writes artifacts into a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store and verifies the bucket is reachable.
// Authentication uses Application Default Credentials.
func New(ctx context.Context, bucket, prefix string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check gcs bucket %q: %w", bucket, err)
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save uploads the artifact and returns its gs:// URI.
func (s *Store) Save(ctx context.Context, key artifact.Key, contentType string, data []byte) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	path := key.Path(s.prefix)
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
