package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// Dialect captures what differs between the SQL backends
type Dialect struct {
	Name   string
	Schema string
	// Placeholder returns the n-th (1-based) bind parameter
	Placeholder func(n int) string
}

// SQLStore implements Storage on database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps db and runs the dialect's migrations
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate %s schema: %w", dialect.Name, err)
	}
	return s, nil
}

// Migrate runs database migrations
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Schema)
	return err
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind replaces ? with the dialect's placeholders
func (s *SQLStore) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRun stores run in a single transaction. Saving the same run id twice
// replaces the earlier copy.
func (s *SQLStore) SaveRun(ctx context.Context, run *domain.Run) error {
	if run.Result == nil {
		return apperrors.NewBadRequestError("run has no result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"invalid_submissions", "submissions"} {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM `+table+` WHERE run_id = ?`), run.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM runs WHERE id = ?`), run.ID); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}

	var deadline sql.NullTime
	if run.Deadline != nil {
		deadline = sql.NullTime{Time: run.Deadline.UTC(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO runs (id, org, prefix, deadline, status, error, started_at, finished_at, discovered, late)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.Org, run.Prefix, deadline, string(run.Status), run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Result.Discovered, run.Result.Late)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	insertRecord := s.rebind(`
		INSERT INTO submissions (run_id, position, repo, student_id, email, name, username, repo_path, submit_time, status, commit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, rec := range run.Result.Records {
		_, err := tx.ExecContext(ctx, insertRecord, run.ID, i, rec.Repo, rec.ID, rec.Email, rec.Name,
			rec.Username, rec.RepoPath, rec.SubmitTime, string(rec.Status), rec.CommitTime.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert submission %s: %w", rec.Repo, err)
		}
	}

	insertInvalid := s.rebind(`
		INSERT INTO invalid_submissions (run_id, position, repo, reason, fields, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, inv := range run.Result.Invalid {
		fields, err := json.Marshal(inv.Fields)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertInvalid, run.ID, i, inv.Repo, string(inv.Reason), string(fields), inv.Detail); err != nil {
			return fmt.Errorf("failed to insert invalid submission %s: %w", inv.Repo, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, org, prefix, deadline, status, error, started_at, finished_at, discovered, late`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.Run, int, int, error) {
	var (
		run        domain.Run
		deadline   sql.NullTime
		status     string
		discovered int
		late       int
	)
	err := row.Scan(&run.ID, &run.Org, &run.Prefix, &deadline, &status, &run.Error,
		&run.StartedAt, &run.FinishedAt, &discovered, &late)
	if err != nil {
		return nil, 0, 0, err
	}
	if deadline.Valid {
		d := deadline.Time
		run.Deadline = &d
	}
	run.Status = domain.RunStatus(status)
	return &run, discovered, late, nil
}

// GetRun returns a run with its records and invalid submissions
func (s *SQLStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	return s.loadRun(ctx, row, fmt.Sprintf("run %s", id))
}

// GetLatestRun returns the most recent run for org and prefix
func (s *SQLStore) GetLatestRun(ctx context.Context, org, prefix string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+runColumns+` FROM runs
		WHERE org = ? AND prefix = ?
		ORDER BY started_at DESC
		LIMIT 1
	`), org, prefix)
	return s.loadRun(ctx, row, fmt.Sprintf("run for %s/%s", org, prefix))
}

func (s *SQLStore) loadRun(ctx context.Context, row *sql.Row, resource string) (*domain.Run, error) {
	run, discovered, late, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(resource)
	}
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{
		Discovered: discovered,
		Late:       late,
		Records:    []domain.SubmissionRecord{},
		Invalid:    []domain.InvalidSubmission{},
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT repo, student_id, email, name, username, repo_path, submit_time, status, commit_time
		FROM submissions WHERE run_id = ? ORDER BY position
	`), run.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.SubmissionRecord
		var status string
		if err := rows.Scan(&rec.Repo, &rec.ID, &rec.Email, &rec.Name, &rec.Username,
			&rec.RepoPath, &rec.SubmitTime, &status, &rec.CommitTime); err != nil {
			return nil, err
		}
		rec.Status = domain.Status(status)
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	invRows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT repo, reason, fields, detail
		FROM invalid_submissions WHERE run_id = ? ORDER BY position
	`), run.ID)
	if err != nil {
		return nil, err
	}
	defer invRows.Close()
	for invRows.Next() {
		var inv domain.InvalidSubmission
		var reason, fields string
		if err := invRows.Scan(&inv.Repo, &reason, &fields, &inv.Detail); err != nil {
			return nil, err
		}
		inv.Reason = domain.Reason(reason)
		if fields != "" && fields != "null" {
			if err := json.Unmarshal([]byte(fields), &inv.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields of %s: %w", inv.Repo, err)
			}
		}
		result.Invalid = append(result.Invalid, inv)
	}
	if err := invRows.Err(); err != nil {
		return nil, err
	}

	run.Result = result
	return run, nil
}

// ListRuns returns runs for org, newest first
func (s *SQLStore) ListRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+runColumns+` FROM runs
		WHERE org = ?
		ORDER BY started_at DESC
		LIMIT ?
	`), org, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, discovered, late, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		run.Result = &domain.BatchResult{Discovered: discovered, Late: late}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
