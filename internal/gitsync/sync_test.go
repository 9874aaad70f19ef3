package gitsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// fakeVCS marks working copies with a .git directory
type fakeVCS struct {
	mu         sync.Mutex
	clones     []string
	pulls      []string
	cloneFn    func(ctx context.Context, url, dest string) error
	pullErr    error
	commitTime time.Time
}

func (f *fakeVCS) Clone(ctx context.Context, url, dest string) error {
	f.mu.Lock()
	f.clones = append(f.clones, url)
	f.mu.Unlock()
	if f.cloneFn != nil {
		return f.cloneFn(ctx, url, dest)
	}
	return os.MkdirAll(filepath.Join(dest, ".git"), 0o755)
}

func (f *fakeVCS) Pull(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, path)
	return f.pullErr
}

func (f *fakeVCS) IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func (f *fakeVCS) HeadCommitTime(path string) (time.Time, error) {
	if !f.IsRepository(path) {
		return time.Time{}, errors.New("not a repository")
	}
	return f.commitTime, nil
}

func newTestSynchronizer(vcs VCS, fetch bool) *Synchronizer {
	return NewSynchronizer(vcs, Options{
		Org:           "SCS-Carleton",
		CloneTimeout:  time.Second,
		FetchExisting: fetch,
	}, nil, nil)
}

func TestSync_ClonesOnce(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	commit := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	vcs := &fakeVCS{commitTime: commit}
	s := newTestSynchronizer(vcs, false)

	wc, err := s.Sync(context.Background(), "a1-001", root)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	wantPath := filepath.Join(root, "submissions", "a1-001")
	if wc.Path != wantPath {
		t.Fatalf("Path = %s, want %s", wc.Path, wantPath)
	}
	if !wc.Cloned {
		t.Error("first sync should clone")
	}
	if !wc.CommitTime.Equal(commit) {
		t.Errorf("CommitTime = %v, want %v", wc.CommitTime, commit)
	}

	wc, err = s.Sync(context.Background(), "a1-001", root)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if wc.Cloned {
		t.Error("second sync should reuse the working copy")
	}
	if len(vcs.clones) != 1 {
		t.Fatalf("clones = %d, want 1", len(vcs.clones))
	}
	if vcs.clones[0] != "https://github.com/SCS-Carleton/a1-001.git" {
		t.Errorf("clone url = %s", vcs.clones[0])
	}
	if len(vcs.pulls) != 0 {
		t.Errorf("pulls = %d, want 0 without FetchExisting", len(vcs.pulls))
	}
}

func TestSync_CloneFailureLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	vcs := &fakeVCS{
		cloneFn: func(ctx context.Context, url, dest string) error {
			_ = os.MkdirAll(filepath.Join(dest, "half"), 0o755)
			return errors.New("authentication required")
		},
	}
	s := newTestSynchronizer(vcs, false)

	_, err := s.Sync(context.Background(), "a1-002", root)
	if !apperrors.IsCloneFailed(err) {
		t.Fatalf("Sync() error = %v, want CLONE_FAILED", err)
	}

	entries, readErr := os.ReadDir(filepath.Join(root, "submissions"))
	if readErr != nil {
		t.Fatalf("ReadDir() error = %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("submissions dir not empty after failed clone: %v", entries)
	}
}

func TestSync_CloneTimeout(t *testing.T) {
	t.Parallel()

	vcs := &fakeVCS{
		cloneFn: func(ctx context.Context, url, dest string) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := NewSynchronizer(vcs, Options{Org: "SCS-Carleton", CloneTimeout: 20 * time.Millisecond}, nil, nil)

	_, err := s.Sync(context.Background(), "a1-003", t.TempDir())
	if !apperrors.IsCloneFailed(err) {
		t.Fatalf("Sync() error = %v, want CLONE_FAILED", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Sync() error = %v, want deadline exceeded cause", err)
	}
}

func TestSync_RecoversInterruptedClone(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	base := filepath.Join(root, "submissions")
	if err := os.MkdirAll(filepath.Join(base, ".a1-004.partial", "objects"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// directory without .git from an older, interrupted run
	if err := os.MkdirAll(filepath.Join(base, "a1-004", "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	vcs := &fakeVCS{commitTime: time.Now()}
	s := newTestSynchronizer(vcs, false)

	wc, err := s.Sync(context.Background(), "a1-004", root)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !wc.Cloned {
		t.Error("invalid working copy should be recloned")
	}
	if _, err := os.Stat(filepath.Join(base, ".a1-004.partial")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial directory still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "a1-004", "src")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale content still present: %v", err)
	}
}

func TestSync_FetchExistingKeepsCopyOnPullFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	vcs := &fakeVCS{commitTime: time.Now(), pullErr: errors.New("network down")}
	s := newTestSynchronizer(vcs, true)

	if _, err := s.Sync(context.Background(), "a1-005", root); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	wc, err := s.Sync(context.Background(), "a1-005", root)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if wc.Cloned {
		t.Error("existing copy should be reused")
	}
	if len(vcs.pulls) != 1 {
		t.Fatalf("pulls = %d, want 1", len(vcs.pulls))
	}
}
