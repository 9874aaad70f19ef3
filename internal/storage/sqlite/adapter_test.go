package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
	"github.com/kurihiro0119/classroom-sync/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time) *domain.Run {
	deadline := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	commit := deadline.Add(-time.Hour)
	return &domain.Run{
		ID:         id,
		Org:        "SCS-Carleton",
		Prefix:     "a1-",
		Deadline:   &deadline,
		Status:     domain.RunStatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Result: &domain.BatchResult{
			Discovered: 3,
			Late:       0,
			Records: []domain.SubmissionRecord{
				domain.NewSubmissionRecord(
					domain.Identity{ID: "123456789", Email: "bob@inst.edu", Name: "Bob Smith", Username: "bsmith"},
					"a1-001", "/data/submissions/a1-001", commit, domain.StatusOnTime,
				),
			},
			Invalid: []domain.InvalidSubmission{
				{Repo: "a1-002", Reason: domain.ReasonMissingMetadata, Detail: "no file"},
				{Repo: "a1-003", Reason: domain.ReasonFieldValidationFailed, Fields: []string{"email", "id"}},
			},
		},
	}
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	ctx := context.Background()
	run := testRun("run-1", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Org != run.Org || got.Prefix != run.Prefix || got.Status != run.Status {
		t.Fatalf("GetRun() = %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(*run.Deadline) {
		t.Fatalf("Deadline = %v, want %v", got.Deadline, run.Deadline)
	}
	if got.Result.Discovered != 3 || len(got.Result.Records) != 1 || len(got.Result.Invalid) != 2 {
		t.Fatalf("Result = %+v", got.Result)
	}

	rec := got.Result.Records[0]
	want := run.Result.Records[0]
	if rec.Identity != want.Identity || rec.Repo != want.Repo || rec.SubmitTime != want.SubmitTime || rec.Status != want.Status {
		t.Fatalf("record = %+v, want %+v", rec, want)
	}
	if !rec.CommitTime.Equal(want.CommitTime) {
		t.Fatalf("CommitTime = %v, want %v", rec.CommitTime, want.CommitTime)
	}

	if !reflect.DeepEqual(got.Result.Invalid[1].Fields, []string{"email", "id"}) {
		t.Fatalf("invalid fields = %v", got.Result.Invalid[1].Fields)
	}
	if got.Result.Invalid[0].Fields != nil {
		t.Fatalf("missing metadata fields = %v, want nil", got.Result.Invalid[0].Fields)
	}
}

func TestSQLiteStorage_SaveRunReplaces(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	ctx := context.Background()
	run := testRun("run-1", time.Now().UTC())

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	run.Result.Invalid = run.Result.Invalid[:1]
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("second SaveRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if len(got.Result.Invalid) != 1 {
		t.Fatalf("invalid = %d, want 1", len(got.Result.Invalid))
	}
}

func TestSQLiteStorage_LatestAndList(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		if err := store.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", id, err)
		}
	}
	other := testRun("run-other", base.Add(10*time.Hour))
	other.Prefix = "a2-"
	if err := store.SaveRun(ctx, other); err != nil {
		t.Fatalf("SaveRun(other) error = %v", err)
	}

	latest, err := store.GetLatestRun(ctx, "SCS-Carleton", "a1-")
	if err != nil {
		t.Fatalf("GetLatestRun() error = %v", err)
	}
	if latest.ID != "run-3" {
		t.Fatalf("GetLatestRun() = %s, want run-3", latest.ID)
	}

	runs, err := store.ListRuns(ctx, "SCS-Carleton", 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-other" || runs[1].ID != "run-3" {
		t.Fatalf("ListRuns() = %v", runs)
	}
}

func TestSQLiteStorage_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)

	if _, err := store.GetRun(context.Background(), "missing"); !apperrors.IsNotFound(err) {
		t.Fatalf("GetRun() error = %v, want NOT_FOUND", err)
	}
	if _, err := store.GetLatestRun(context.Background(), "SCS-Carleton", "zz-"); !apperrors.IsNotFound(err) {
		t.Fatalf("GetLatestRun() error = %v, want NOT_FOUND", err)
	}
}
