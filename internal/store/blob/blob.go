// Package blob writes the raw provider responses to the archive layer.
// The archive is the first sink in the pipeline; its failure fails the run.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// Store is the minimal blob capability the raw archive needs. GCS backs it
// in production, the filesystem in local runs and tests.
type Store interface {
	Write(ctx context.Context, path string, data []byte, contentType string) error
}

type FSStore struct {
	root string
}

func NewFS(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Write(_ context.Context, path string, data []byte, _ string) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blob mkdir %q: %w", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("blob write %q: %w", full, err)
	}
	return nil
}

type GCSStore struct {
	bucket *storage.BucketHandle
}

func NewGCS(ctx context.Context, bucketName string) (*GCSStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{bucket: client.Bucket(bucketName)}, nil
}

func (s *GCSStore) Write(ctx context.Context, path string, data []byte, contentType string) error {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %q: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %q: %w", path, err)
	}
	return nil
}
