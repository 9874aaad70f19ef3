package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
	"github.com/kurihiro0119/classroom-sync/internal/observability"
)

// SubmissionsDir is the directory under the destination root that holds
// one working copy per repository.
const SubmissionsDir = "submissions"

// Options configures a Synchronizer
type Options struct {
	Host          string
	Org           string
	CloneTimeout  time.Duration
	FetchExisting bool
}

// Synchronizer ensures a local working copy exists for a repository.
// Working copies are cloned once and never deleted or overwritten; only a
// directory that is not a valid repository is replaced.
type Synchronizer struct {
	vcs     VCS
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSynchronizer creates a new Synchronizer
func NewSynchronizer(vcs VCS, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Host == "" {
		opts.Host = "github.com"
	}
	return &Synchronizer{
		vcs:     vcs,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CloneURL returns the HTTPS clone URL of name
func (s *Synchronizer) CloneURL(name string) string {
	return fmt.Sprintf("https://%s/%s/%s.git", s.opts.Host, s.opts.Org, name)
}

// LocalPath returns where the working copy of name lives under destRoot
func LocalPath(destRoot, name string) (string, error) {
	return filepath.Abs(filepath.Join(destRoot, SubmissionsDir, name))
}

func partialPath(localPath string) string {
	return filepath.Join(filepath.Dir(localPath), "."+filepath.Base(localPath)+".partial")
}

// Sync clones name into destRoot/submissions/name when it is not there yet and
// returns the working copy with its last commit time. Any failure is a
// CLONE_FAILED error scoped to this repository.
func (s *Synchronizer) Sync(ctx context.Context, name, destRoot string) (domain.WorkingCopy, error) {
	start := time.Now()
	wc := domain.WorkingCopy{Name: name}

	localPath, err := LocalPath(destRoot, name)
	if err != nil {
		return wc, apperrors.NewCloneError(name, err)
	}
	wc.Path = localPath

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return wc, apperrors.NewCloneError(name, err)
	}

	// a partial directory is what an interrupted clone leaves behind
	partial := partialPath(localPath)
	if err := os.RemoveAll(partial); err != nil {
		return wc, apperrors.NewCloneError(name, fmt.Errorf("remove stale partial clone: %w", err))
	}

	exists, err := s.prepareExisting(name, localPath)
	if err != nil {
		return wc, apperrors.NewCloneError(name, err)
	}

	if exists {
		if s.opts.FetchExisting {
			s.refresh(ctx, name, localPath)
		}
		s.metrics.ObserveSync("reuse", time.Since(start))
	} else {
		if err := s.clone(ctx, name, localPath, partial); err != nil {
			return wc, apperrors.NewCloneError(name, err)
		}
		wc.Cloned = true
		s.metrics.ObserveSync("clone", time.Since(start))
	}

	commitTime, err := s.vcs.HeadCommitTime(localPath)
	if err != nil {
		return wc, apperrors.NewCloneError(name, err)
	}
	wc.CommitTime = commitTime

	return wc, nil
}

// prepareExisting reports whether a usable working copy is already present.
// A directory that cannot be opened as a repository is removed.
func (s *Synchronizer) prepareExisting(name, localPath string) (bool, error) {
	_, err := os.Stat(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if s.vcs.IsRepository(localPath) {
		return true, nil
	}

	s.logger.Warn("working copy is not a valid repository, recloning",
		zap.String("repo", name),
		zap.String("path", localPath),
	)
	if err := os.RemoveAll(localPath); err != nil {
		return false, fmt.Errorf("remove invalid working copy: %w", err)
	}
	return false, nil
}

func (s *Synchronizer) clone(ctx context.Context, name, localPath, partial string) error {
	cloneCtx := ctx
	if s.opts.CloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, s.opts.CloneTimeout)
		defer cancel()
	}

	url := s.CloneURL(name)
	s.logger.Debug("cloning", zap.String("repo", name), zap.String("url", url))

	if err := s.vcs.Clone(cloneCtx, url, partial); err != nil {
		_ = os.RemoveAll(partial)
		return err
	}
	if err := os.Rename(partial, localPath); err != nil {
		_ = os.RemoveAll(partial)
		return fmt.Errorf("move clone into place: %w", err)
	}
	return nil
}

// refresh pulls an existing working copy. Failures keep the current content.
func (s *Synchronizer) refresh(ctx context.Context, name, localPath string) {
	pullCtx := ctx
	if s.opts.CloneTimeout > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, s.opts.CloneTimeout)
		defer cancel()
	}

	if err := s.vcs.Pull(pullCtx, localPath); err != nil {
		s.logger.Warn("refresh failed, keeping existing working copy",
			zap.String("repo", name),
			zap.Error(err),
		)
	}
}
