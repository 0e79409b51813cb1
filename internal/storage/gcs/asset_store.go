// Package gcs provides an asset store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "Dilbert".
	Prefix string
}

// AssetStore writes strip images to a bucket.
type AssetStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed asset store.
func New(client *storage.Client, cfg Config) (*AssetStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &AssetStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *AssetStore) object(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	if s.prefix == "" {
		return rel, nil
	}
	return path.Join(s.prefix, rel), nil
}

// Exists reports whether the object is present.
func (s *AssetStore) Exists(ctx context.Context, rel string) (bool, error) {
	name, err := s.object(rel)
	if err != nil {
		return false, err
	}
	_, err = s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat gs://%s/%s: %w", s.bucket, name, err)
	}
	return true, nil
}

// Put uploads data and returns a gs:// URI. GCS uploads are atomic, so a
// failed write never leaves a partial object.
func (s *AssetStore) Put(ctx context.Context, rel string, data []byte) (string, error) {
	name, err := s.object(rel)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "image/png"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Open streams the object. A missing object yields an error matching
// fs.ErrNotExist.
func (s *AssetStore) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	name, err := s.object(rel)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, name, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, name, err)
	}
	return reader, nil
}
