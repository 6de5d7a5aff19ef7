// Package ledger is the append-only decision ledger. Every underwriting,
// compliance and final decision is recorded as a hash-chained entry;
// entries are never mutated or deleted, and "updating" a decision means
// appending a newer record of the same type.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fairway-labs/fairway/core/pkg/canonicalize"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Entry is one immutable ledger record.
type Entry struct {
	Decision    contracts.Decision `json:"decision"`
	Sequence    uint64             `json:"sequence"`
	ContentHash string             `json:"content_hash"`
	PrevHash    string             `json:"prev_hash"`
}

// Sink receives every appended entry for durable storage. Sink failures
// degrade durability but never block the in-memory ledger.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Ledger is an in-memory, hash-chained decision log with an optional
// durable sink.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	byApp    map[string][]int
	headHash string

	sink   Sink
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string

	degradedWrites atomic.Uint64
}

type Option func(*Ledger)

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithSink attaches a durable sink that receives every appended entry.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithIDGenerator overrides decision ID generation, for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

func New(logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		byApp:    make(map[string][]int),
		headHash: "genesis",
		logger:   logger.With("component", "ledger"),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends a decision. The decision ID and timestamp are assigned
// here when unset; the returned entry is a copy and safe to retain.
func (l *Ledger) Record(ctx context.Context, d contracts.Decision) (Entry, error) {
	if d.ApplicationID == "" {
		return Entry{}, contracts.NewValidationError("decision missing application id")
	}
	if d.DecisionType == "" {
		return Entry{}, contracts.NewValidationError("decision missing type")
	}
	if d.ID == "" {
		d.ID = l.newID()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = l.clock().UTC()
	}

	l.mu.Lock()
	seq := uint64(len(l.entries)) + 1
	hash, err := entryHash(seq, d, l.headHash)
	if err != nil {
		l.mu.Unlock()
		return Entry{}, fmt.Errorf("hash decision: %w", err)
	}
	entry := Entry{
		Decision:    d,
		Sequence:    seq,
		ContentHash: hash,
		PrevHash:    l.headHash,
	}
	l.entries = append(l.entries, entry)
	l.byApp[d.ApplicationID] = append(l.byApp[d.ApplicationID], len(l.entries)-1)
	l.headHash = hash
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Append(ctx, entry); err != nil {
			l.degradedWrites.Add(1)
			l.logger.Error("ledger sink write failed, entry held in memory only",
				"application_id", d.ApplicationID, "decision_type", d.DecisionType,
				"sequence", entry.Sequence, "error", err)
		}
	}
	return entry, nil
}

// Decisions returns recorded decisions for an application, newest first.
// Passing decision types narrows the result to those types.
func (l *Ledger) Decisions(applicationID string, types ...contracts.DecisionType) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byApp[applicationID]
	out := make([]Entry, 0, len(idxs))
	for i := len(idxs) - 1; i >= 0; i-- {
		e := l.entries[idxs[i]]
		if len(types) > 0 && !typeMatches(e.Decision.DecisionType, types) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func typeMatches(dt contracts.DecisionType, types []contracts.DecisionType) bool {
	for _, t := range types {
		if dt == t {
			return true
		}
	}
	return false
}

// Latest returns the most recent decision of the given type for an
// application, and whether one exists.
func (l *Ledger) Latest(applicationID string, dt contracts.DecisionType) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byApp[applicationID]
	for i := len(idxs) - 1; i >= 0; i-- {
		if l.entries[idxs[i]].Decision.DecisionType == dt {
			return l.entries[idxs[i]], true
		}
	}
	return Entry{}, false
}

// Length returns the number of entries across all applications.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Head returns the current chain head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// DegradedWrites reports how many sink writes have failed since startup.
func (l *Ledger) DegradedWrites() uint64 { return l.degradedWrites.Load() }

// Restore loads previously persisted entries into an empty ledger, in
// sequence order, and verifies the rebuilt chain.
func (l *Ledger) Restore(entries []Entry) error {
	l.mu.Lock()
	if len(l.entries) > 0 {
		l.mu.Unlock()
		return fmt.Errorf("restore into non-empty ledger")
	}
	for _, e := range entries {
		l.entries = append(l.entries, e)
		l.byApp[e.Decision.ApplicationID] = append(l.byApp[e.Decision.ApplicationID], len(l.entries)-1)
		l.headHash = e.ContentHash
	}
	l.mu.Unlock()

	if ok, reason := l.Verify(); !ok {
		return fmt.Errorf("restored ledger failed verification: %s", reason)
	}
	return nil
}

// Verify walks the full chain and reports the first break, if any.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := entryHash(entry.Sequence, entry.Decision, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("entry %d not hashable: %v", i+1, err)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}

func entryHash(seq uint64, d contracts.Decision, prevHash string) (string, error) {
	hashInput := struct {
		Seq      uint64             `json:"seq"`
		Decision contracts.Decision `json:"decision"`
		PrevHash string             `json:"prev"`
	}{seq, d, prevHash}

	h, err := canonicalize.CanonicalHash(hashInput)
	if err != nil {
		return "", err
	}
	return "sha256:" + h, nil
}
