//go:build !gcp

package docanalysis

import (
	"context"
	"fmt"
)

func newGCSVault(ctx context.Context, bucket string) (Vault, error) {
	return nil, fmt.Errorf("gcs vault requires a binary built with the gcp tag")
}
