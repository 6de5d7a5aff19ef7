//go:build gcp

package docanalysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/fairway-labs/fairway/core/pkg/canonicalize"
)

// GCSVault stores document content in Google Cloud Storage under its
// content hash. Built only with the gcp tag to keep the default binary
// free of the GCS dependency tree.
type GCSVault struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSVaultConfig holds configuration for GCSVault.
type GCSVaultConfig struct {
	Bucket string
	Prefix string
}

func NewGCSVault(ctx context.Context, cfg GCSVaultConfig) (*GCSVault, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSVault{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (v *GCSVault) Store(ctx context.Context, data []byte) (string, error) {
	hash := canonicalize.HashBytes(data)
	key := v.prefix + hash + ".blob"
	obj := v.client.Bucket(v.bucket).Object(key)

	// Content-addressed: if the object exists, the store is a no-op.
	if _, err := obj.Attrs(ctx); err == nil {
		return "sha256:" + hash, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs: %w", err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close: %w", err)
	}
	return "sha256:" + hash, nil
}

func (v *GCSVault) Retrieve(ctx context.Context, hash string) ([]byte, error) {
	key := v.prefix + strings.TrimPrefix(hash, "sha256:") + ".blob"

	r, err := v.client.Bucket(v.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: %w", hash, err)
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}
