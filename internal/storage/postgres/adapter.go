package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/classroom-sync/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	org TEXT NOT NULL,
	prefix TEXT NOT NULL,
	deadline TIMESTAMPTZ,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	discovered INTEGER NOT NULL,
	late INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_org_prefix ON runs(org, prefix, started_at);

CREATE TABLE IF NOT EXISTS submissions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	repo TEXT NOT NULL,
	student_id TEXT NOT NULL,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	username TEXT NOT NULL,
	repo_path TEXT NOT NULL,
	submit_time TEXT NOT NULL,
	status TEXT NOT NULL,
	commit_time TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS invalid_submissions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	repo TEXT NOT NULL,
	reason TEXT NOT NULL,
	fields JSONB NOT NULL,
	detail TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s, err := storage.NewSQLStore(context.Background(), db, storage.Dialect{
		Name:        "postgres",
		Schema:      schema,
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
