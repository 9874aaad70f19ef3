package gitsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// VCS is the version-control boundary used by the Synchronizer
type VCS interface {
	// Clone performs a full clone of url into dest. dest must not exist.
	Clone(ctx context.Context, url, dest string) error

	// Pull fast-forwards the working copy at path from its origin.
	Pull(ctx context.Context, path string) error

	// IsRepository reports whether path holds an openable working copy.
	IsRepository(path string) bool

	// HeadCommitTime returns the committer time of the checked out tip.
	HeadCommitTime(path string) (time.Time, error)
}

// GoGit implements VCS with go-git
type GoGit struct {
	auth transport.AuthMethod
}

// NewGoGit creates a go-git backed VCS. A non-empty token is sent as HTTP
// basic auth password, which GitHub accepts for personal access tokens.
func NewGoGit(token string) *GoGit {
	g := &GoGit{}
	if token != "" {
		g.auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: token,
		}
	}
	return g
}

func (g *GoGit) Clone(ctx context.Context, url, dest string) error {
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          url,
		Auth:         g.auth,
		SingleBranch: true,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

func (g *GoGit) Pull(ctx context.Context, path string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree %s: %w", path, err)
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:   "origin",
		Auth:         g.auth,
		SingleBranch: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", path, err)
	}
	return nil
}

func (g *GoGit) IsRepository(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

func (g *GoGit) HeadCommitTime(path string) (time.Time, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("open %s: %w", path, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve HEAD of %s: %w", path, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return time.Time{}, fmt.Errorf("read commit %s: %w", ref.Hash(), err)
	}
	return commit.Committer.When, nil
}
