package docanalysis

import (
	"context"
	"fmt"
)

// NewVault builds a Vault by backend name: "memory", "s3", or "gcs"
// (the latter only in binaries built with the gcp tag).
func NewVault(ctx context.Context, backend, bucket string) (Vault, error) {
	switch backend {
	case "", "memory":
		return NewMemoryVault(), nil
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("s3 vault requires a bucket")
		}
		return NewS3Vault(ctx, S3VaultConfig{Bucket: bucket})
	case "gcs":
		if bucket == "" {
			return nil, fmt.Errorf("gcs vault requires a bucket")
		}
		return newGCSVault(ctx, bucket)
	default:
		return nil, fmt.Errorf("unknown vault backend %q", backend)
	}
}
