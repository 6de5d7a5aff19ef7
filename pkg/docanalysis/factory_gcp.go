//go:build gcp

package docanalysis

import "context"

func newGCSVault(ctx context.Context, bucket string) (Vault, error) {
	return NewGCSVault(ctx, GCSVaultConfig{Bucket: bucket})
}
