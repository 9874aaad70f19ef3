package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/classroom-sync/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	org TEXT NOT NULL,
	prefix TEXT NOT NULL,
	deadline TIMESTAMP,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
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
	commit_time TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS invalid_submissions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	repo TEXT NOT NULL,
	reason TEXT NOT NULL,
	fields TEXT NOT NULL,
	detail TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s, err := storage.NewSQLStore(context.Background(), db, storage.Dialect{
		Name:        "sqlite",
		Schema:      schema,
		Placeholder: func(int) string { return "?" },
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
