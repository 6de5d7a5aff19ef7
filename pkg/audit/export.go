package audit

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/ledger"
)

var (
	// ErrEmptyApplicationID is returned when the application ID is empty.
	ErrEmptyApplicationID = errors.New("audit: application_id must not be empty")
	// ErrLedgerNotConfigured is returned when export is invoked without a
	// decision ledger (fail closed).
	ErrLedgerNotConfigured = errors.New("audit: ledger not configured")
)

// Exporter bundles an application's audit events and decision trail into a
// verifiable evidence pack.
type Exporter struct {
	events *MemoryLog
	ledger *ledger.Ledger
	now    func() time.Time
}

func NewExporter(events *MemoryLog, l *ledger.Ledger) *Exporter {
	return &Exporter{events: events, ledger: l, now: time.Now}
}

// GeneratePack creates a zip with the application's audit events, its
// decision trail and a manifest, returning the archive and its sha256.
func (e *Exporter) GeneratePack(applicationID string) ([]byte, string, error) {
	if applicationID == "" {
		return nil, "", ErrEmptyApplicationID
	}
	if e.ledger == nil {
		return nil, "", ErrLedgerNotConfigured
	}

	var events []Event
	if e.events != nil {
		events = e.events.Events(applicationID)
	}
	trail := e.ledger.AuditTrail(applicationID)

	eventsJSON, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, "", err
	}
	trailJSON, err := json.MarshalIndent(trail, "", "  ")
	if err != nil {
		return nil, "", err
	}

	manifest := map[string]any{
		"application_id": applicationID,
		"generated_at":   e.now().UTC(),
		"event_count":    len(events),
		"decision_count": len(trail.Entries),
		"chain_intact":   trail.ChainIntact,
		"chain_head":     e.ledger.Head(),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	files := []struct {
		name string
		body []byte
	}{
		{"events.json", eventsJSON},
		{"decisions.json", trailJSON},
		{"manifest.json", manifestJSON},
	}
	for _, f := range files {
		zf, err := w.Create(f.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := zf.Write(f.body); err != nil {
			return nil, "", err
		}
	}

	readme, err := w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	fmt.Fprintf(readme, "Evidence pack for application %s\nGenerated at %s\n", applicationID, e.now().UTC().Format(time.RFC3339))

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	sum := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(sum[:]), nil
}
