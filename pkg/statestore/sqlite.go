package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLite is a Backend on a local SQLite database. The full application
// document is stored as JSON alongside indexed columns for querying.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLite(db)
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS applications (
		application_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		document JSON NOT NULL,
		last_updated DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Create(ctx context.Context, app *contracts.Application) error {
	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applications (application_id, status, document, last_updated) VALUES (?, ?, ?, ?)`,
		app.ID, string(app.Status), string(doc), app.LastUpdated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert application %s: %w", app.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*contracts.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document FROM applications WHERE application_id = ?`, id)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, fmt.Errorf("query application %s: %w", id, err)
	}
	return unmarshalApp(doc)
}

func (s *SQLite) Update(ctx context.Context, app *contracts.Application) error {
	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, document = ?, last_updated = ? WHERE application_id = ?`,
		string(app.Status), string(doc), app.LastUpdated.UTC().Format(time.RFC3339Nano), app.ID,
	)
	if err != nil {
		return fmt.Errorf("update application %s: %w", app.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (s *SQLite) Query(ctx context.Context, filter map[string]any) ([]*contracts.Application, error) {
	query := `SELECT document FROM applications`
	var args []any
	if status, ok := filter["status"]; ok {
		query += ` WHERE status = ?`
		args = append(args, fmt.Sprintf("%v", status))
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*contracts.Application
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		app, err := unmarshalApp(doc)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func unmarshalApp(doc string) (*contracts.Application, error) {
	var app contracts.Application
	if err := json.Unmarshal([]byte(doc), &app); err != nil {
		return nil, fmt.Errorf("unmarshal application: %w", err)
	}
	return &app, nil
}
