// Package audit records the operational audit trail: one structured JSON
// event per stage transition, decision and notification. Events complement
// the decision ledger; the ledger proves what was decided, the audit log
// shows who touched what and when.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairway-labs/fairway/core/pkg/auth"
)

// EventType categorizes audit events.
type EventType string

const (
	EventStage        EventType = "STAGE_TRANSITION"
	EventDecision     EventType = "DECISION"
	EventNotification EventType = "NOTIFICATION"
	EventSystem       EventType = "SYSTEM"
)

// Event is one audit record.
type Event struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	Actor         string         `json:"actor"`
	Type          EventType      `json:"type"`
	Action        string         `json:"action"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, applicationID string, metadata map[string]any) error
}

// logger writes events as JSON lines to a configurable writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	now    func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer, for
// tests and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, now: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, applicationID string, metadata map[string]any) error {
	event := newEvent(ctx, eventType, action, applicationID, metadata, l.now)

	l.mu.Lock()
	defer l.mu.Unlock()

	buf, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix for easy filtering in mixed log streams.
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(buf, '\n')...))
	return err
}

func newEvent(ctx context.Context, eventType EventType, action, applicationID string, metadata map[string]any, now func() time.Time) Event {
	actor := "system"
	if p, err := auth.GetPrincipal(ctx); err == nil {
		actor = p.Subject
	}
	return Event{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		Actor:         actor,
		Type:          eventType,
		Action:        action,
		Timestamp:     now().UTC(),
		Metadata:      metadata,
	}
}
