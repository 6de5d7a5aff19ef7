package docanalysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairway-labs/fairway/core/pkg/canonicalize"
)

// Vault stores raw document content by SHA-256 content hash. Storing the
// same bytes twice is idempotent and returns the same hash.
type Vault interface {
	Store(ctx context.Context, data []byte) (string, error)
	Retrieve(ctx context.Context, hash string) ([]byte, error)
}

// MemoryVault keeps documents in process memory, for tests and dev runs.
type MemoryVault struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[string][]byte)}
}

func (v *MemoryVault) Store(ctx context.Context, data []byte) (string, error) {
	hash := "sha256:" + canonicalize.HashBytes(data)
	v.mu.Lock()
	if _, ok := v.blobs[hash]; !ok {
		v.blobs[hash] = append([]byte(nil), data...)
	}
	v.mu.Unlock()
	return hash, nil
}

func (v *MemoryVault) Retrieve(ctx context.Context, hash string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("document %s not found", hash)
	}
	return append([]byte(nil), data...), nil
}
