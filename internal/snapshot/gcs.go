package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSBackend stores snapshots as objects under a prefix of a Cloud Storage
// bucket. Objects only become visible once the upload is finalized, so
// readers never see a partial snapshot.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a storage client for the bucket and prefix named by
// uri, e.g. "gs://my-bucket/bank-forwarder/snapshots".
func NewGCSBackend(ctx context.Context, uri string) (*GCSBackend, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("NewGCSBackend: %w", err)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSBackend: create storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: prefix}, nil
}

// ParseGCSURI splits "gs://bucket/some/prefix" into bucket and prefix. The
// prefix may be empty.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

// ObjectName returns the object path used for key.
func (b *GCSBackend) ObjectName(key string) string {
	return objectName(b.prefix, key)
}

func objectName(prefix, key string) string {
	return path.Join(prefix, key+".json")
}

func (b *GCSBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	name := b.ObjectName(key)
	rc, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", b.bucket, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", b.bucket, name, err)
	}
	return data, nil
}

func (b *GCSBackend) Write(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	name := b.ObjectName(key)
	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s/%s: %w", b.bucket, name, err)
	}
	// Close finalizes the upload; the object is replaced only on success.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s/%s: %w", b.bucket, name, err)
	}
	return nil
}

func (b *GCSBackend) Close() error {
	return b.client.Close()
}
