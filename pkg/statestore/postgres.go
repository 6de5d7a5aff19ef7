package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairway-labs/fairway/core/pkg/contracts"

	_ "github.com/lib/pq"
)

// Postgres is a Backend on PostgreSQL, for multi-node deployments.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the given DSN and runs migrations.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgres(db)
}

func NewPostgres(db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS applications (
		application_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		document JSONB NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);`
	_, err := p.db.ExecContext(context.Background(), query)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Create(ctx context.Context, app *contracts.Application) error {
	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO applications (application_id, status, document, last_updated) VALUES ($1, $2, $3, $4)`,
		app.ID, string(app.Status), doc, app.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert application %s: %w", app.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*contracts.Application, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT document FROM applications WHERE application_id = $1`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, fmt.Errorf("query application %s: %w", id, err)
	}
	return unmarshalApp(string(doc))
}

func (p *Postgres) Update(ctx context.Context, app *contracts.Application) error {
	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE applications SET status = $1, document = $2, last_updated = $3 WHERE application_id = $4`,
		string(app.Status), doc, app.LastUpdated.UTC(), app.ID,
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

func (p *Postgres) Query(ctx context.Context, filter map[string]any) ([]*contracts.Application, error) {
	query := `SELECT document FROM applications`
	var args []any
	if status, ok := filter["status"]; ok {
		query += ` WHERE status = $1`
		args = append(args, fmt.Sprintf("%v", status))
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*contracts.Application
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		app, err := unmarshalApp(string(doc))
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
