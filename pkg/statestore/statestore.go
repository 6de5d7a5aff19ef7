// Package statestore persists application workflow state. A Backend is the
// durable source of truth; the Manager layers an in-memory cache on top and
// degrades to cache-only operation when the backend fails.
package statestore

import (
	"context"
	"sync"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Backend is a durable application store. History is append-only: Update
// implementations persist the full document but callers never remove or
// rewrite existing history entries.
type Backend interface {
	Create(ctx context.Context, app *contracts.Application) error
	Get(ctx context.Context, id string) (*contracts.Application, error)
	Update(ctx context.Context, app *contracts.Application) error
	// Query returns applications matching every filter key. Supported keys:
	// "status". A nil or empty filter returns all applications.
	Query(ctx context.Context, filter map[string]any) ([]*contracts.Application, error)
}

// Memory is an in-process Backend used in tests and single-node dev runs.
type Memory struct {
	mu   sync.RWMutex
	apps map[string]*contracts.Application
}

func NewMemory() *Memory {
	return &Memory{apps: make(map[string]*contracts.Application)}
}

func (m *Memory) Create(ctx context.Context, app *contracts.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[app.ID]; ok {
		return contracts.NewValidationError("application %s already exists", app.ID)
	}
	m.apps[app.ID] = app.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*contracts.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return app.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, app *contracts.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[app.ID]; !ok {
		return contracts.ErrNotFound
	}
	m.apps[app.ID] = app.Clone()
	return nil
}

func (m *Memory) Query(ctx context.Context, filter map[string]any) ([]*contracts.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.Application
	for _, app := range m.apps {
		if matches(app, filter) {
			out = append(out, app.Clone())
		}
	}
	return out, nil
}

func matches(app *contracts.Application, filter map[string]any) bool {
	for key, want := range filter {
		switch key {
		case "status":
			switch v := want.(type) {
			case contracts.ApplicationStatus:
				if app.Status != v {
					return false
				}
			case string:
				if string(app.Status) != v {
					return false
				}
			default:
				return false
			}
		default:
			return false
		}
	}
	return true
}
