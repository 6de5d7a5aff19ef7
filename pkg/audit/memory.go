package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryLog retains events in memory, indexed by application, so they can
// be queried and bundled into evidence packs.
type MemoryLog struct {
	mu     sync.RWMutex
	events map[string][]Event
	now    func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		events: make(map[string][]Event),
		now:    time.Now,
	}
}

func (m *MemoryLog) Record(ctx context.Context, eventType EventType, action, applicationID string, metadata map[string]any) error {
	event := newEvent(ctx, eventType, action, applicationID, metadata, m.now)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[applicationID] = append(m.events[applicationID], event)
	return nil
}

// Events returns the recorded events for one application, oldest first.
func (m *MemoryLog) Events(applicationID string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events[applicationID]...)
}

// Tee records to every logger, returning the first error. A failing
// secondary sink does not stop the others.
type Tee []Logger

func (t Tee) Record(ctx context.Context, eventType EventType, action, applicationID string, metadata map[string]any) error {
	var first error
	for _, l := range t {
		if err := l.Record(ctx, eventType, action, applicationID, metadata); err != nil && first == nil {
			first = err
		}
	}
	return first
}
