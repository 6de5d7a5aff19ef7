package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists ledger entries to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (or creates) the database at path and runs migrations.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLiteSink(db)
}

func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS decisions (
		sequence INTEGER PRIMARY KEY,
		decision_id TEXT NOT NULL,
		application_id TEXT NOT NULL,
		decision_type TEXT NOT NULL,
		outcome INTEGER NOT NULL,
		record JSON NOT NULL,
		content_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_app ON decisions(application_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	record, err := json.Marshal(e.Decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	outcome := 0
	if e.Decision.Outcome {
		outcome = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (sequence, decision_id, application_id, decision_type, outcome, record, content_hash, prev_hash, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence, e.Decision.ID, e.Decision.ApplicationID, string(e.Decision.DecisionType),
		outcome, string(record), e.ContentHash, e.PrevHash,
		e.Decision.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", e.Decision.ID, err)
	}
	return nil
}

// Entries replays all persisted entries in sequence order, for rebuilding
// the in-memory ledger at startup.
func (s *SQLiteSink) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, record, content_hash, prev_hash FROM decisions ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			record string
		)
		if err := rows.Scan(&e.Sequence, &record, &e.ContentHash, &e.PrevHash); err != nil {
			return nil, err
		}
		var d contracts.Decision
		if err := json.Unmarshal([]byte(record), &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision at sequence %d: %w", e.Sequence, err)
		}
		e.Decision = d
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
