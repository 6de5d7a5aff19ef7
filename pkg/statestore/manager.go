package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// ContextKeyApplication is the context key holding the submitted loan data.
const ContextKeyApplication = "application"

// Manager coordinates the durable backend and an in-memory cache. Every
// successful durable write refreshes the cache; when the backend fails the
// manager logs, counts the degradation, keeps serving from cache, and lets
// the pipeline continue.
type Manager struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*contracts.Application

	degradedWrites atomic.Uint64
}

type ManagerOption func(*Manager)

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(backend Backend, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		backend: backend,
		logger:  logger.With("component", "statestore"),
		now:     time.Now,
		cache:   make(map[string]*contracts.Application),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DegradedWrites reports how many durable writes have been served from
// cache only since startup.
func (m *Manager) DegradedWrites() uint64 { return m.degradedWrites.Load() }

// Create registers a new application in INITIATED state with the submitted
// loan data under the "application" context key.
func (m *Manager) Create(ctx context.Context, id string, loan *contracts.LoanApplication) (*contracts.Application, error) {
	raw, err := json.Marshal(loan)
	if err != nil {
		return nil, fmt.Errorf("marshal loan application: %w", err)
	}

	now := m.now().UTC()
	app := &contracts.Application{
		ID:     id,
		Status: contracts.StatusInitiated,
		Context: map[string]json.RawMessage{
			ContextKeyApplication: raw,
		},
		History: []contracts.HistoryEntry{
			{Status: contracts.StatusInitiated, Timestamp: now, Note: "application received"},
		},
		LastUpdated: now,
	}

	if err := m.backend.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create application %s: %w", id, err)
	}
	m.cachePut(app)
	return app.Clone(), nil
}

// Get returns the application. The durable backend is read first, but a
// cached copy left ahead by a degraded write wins over a stale backend
// row; a healthy read must never roll the state back. The cache also
// serves reads when the backend fails outright.
func (m *Manager) Get(ctx context.Context, id string) (*contracts.Application, error) {
	m.mu.RLock()
	cached, ok := m.cache[id]
	m.mu.RUnlock()

	app, err := m.backend.Get(ctx, id)
	if err == nil {
		if ok && cacheAhead(cached, app) {
			m.logger.Warn("backend copy stale after degraded write, serving cached state",
				"application_id", id, "backend_status", app.Status, "cached_status", cached.Status)
			return cached.Clone(), nil
		}
		m.cachePut(app)
		return app.Clone(), nil
	}
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, err
	}

	if ok {
		m.logger.Warn("backend read failed, serving cached state",
			"application_id", id, "error", err)
		return cached.Clone(), nil
	}
	return nil, fmt.Errorf("get application %s: %w", id, err)
}

// cacheAhead reports whether the cached copy carries writes the backend
// row is missing. History is append-only, so a longer history breaks
// LastUpdated ties from coarse clocks.
func cacheAhead(cached, stored *contracts.Application) bool {
	if cached.LastUpdated.After(stored.LastUpdated) {
		return true
	}
	return !cached.LastUpdated.Before(stored.LastUpdated) && len(cached.History) > len(stored.History)
}

// Transition moves the application to a new status, enforcing the legal
// transition graph and appending a history entry.
func (m *Manager) Transition(ctx context.Context, id string, to contracts.ApplicationStatus, note string) (*contracts.Application, error) {
	app, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contracts.CanTransition(app.Status, to) {
		return nil, contracts.NewValidationError("illegal transition %s -> %s for application %s", app.Status, to, id)
	}

	now := m.now().UTC()
	app.Status = to
	app.History = append(app.History, contracts.HistoryEntry{Status: to, Timestamp: now, Note: note})
	app.LastUpdated = now

	m.persist(ctx, app)
	return app.Clone(), nil
}

// PutContext stores a stage result under the given context key.
func (m *Manager) PutContext(ctx context.Context, id, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", key, err)
	}

	app, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if app.Context == nil {
		app.Context = make(map[string]json.RawMessage)
	}
	app.Context[key] = raw
	app.LastUpdated = m.now().UTC()

	m.persist(ctx, app)
	return nil
}

// Query lists applications by filter, from the durable backend.
func (m *Manager) Query(ctx context.Context, filter map[string]any) ([]*contracts.Application, error) {
	return m.backend.Query(ctx, filter)
}

// persist writes through to the backend and always refreshes the cache.
// A backend failure downgrades to cache-only operation rather than aborting
// the pipeline run.
func (m *Manager) persist(ctx context.Context, app *contracts.Application) {
	if err := m.backend.Update(ctx, app); err != nil {
		m.degradedWrites.Add(1)
		m.logger.Error("durable write failed, continuing with cached state",
			"application_id", app.ID, "status", app.Status, "error", err)
	}
	m.cachePut(app)
}

func (m *Manager) cachePut(app *contracts.Application) {
	m.mu.Lock()
	m.cache[app.ID] = app.Clone()
	m.mu.Unlock()
}
