package aggregator

import (
	"context"
	"fmt"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
	"github.com/kurihiro0119/classroom-sync/internal/storage"
)

// Aggregator defines the read model over stored runs
type Aggregator interface {
	// GetRun returns a stored run with its result
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// GetLatestRun returns the most recent run for org and prefix
	GetLatestRun(ctx context.Context, org, prefix string) (*domain.Run, error)

	// ListRuns returns recent runs for org, newest first
	ListRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error)

	// GetRunStats returns the totals of a run
	GetRunStats(ctx context.Context, id string) (*domain.RunStats, error)

	// CompareRuns reports repositories whose outcome changed from base to head
	CompareRuns(ctx context.Context, baseID, headID string) (*domain.RunDiff, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

func (a *aggregator) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return a.storage.GetRun(ctx, id)
}

func (a *aggregator) GetLatestRun(ctx context.Context, org, prefix string) (*domain.Run, error) {
	return a.storage.GetLatestRun(ctx, org, prefix)
}

func (a *aggregator) ListRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error) {
	return a.storage.ListRuns(ctx, org, limit)
}

func (a *aggregator) GetRunStats(ctx context.Context, id string) (*domain.RunStats, error) {
	run, err := a.storage.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return Stats(run), nil
}

func (a *aggregator) CompareRuns(ctx context.Context, baseID, headID string) (*domain.RunDiff, error) {
	base, err := a.storage.GetRun(ctx, baseID)
	if err != nil {
		return nil, err
	}
	head, err := a.storage.GetRun(ctx, headID)
	if err != nil {
		return nil, err
	}
	if base.Org != head.Org || base.Prefix != head.Prefix {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("runs %s and %s cover different batches", baseID, headID))
	}
	return Compare(base, head), nil
}

// Stats computes the totals of a run
func Stats(run *domain.Run) *domain.RunStats {
	stats := &domain.RunStats{
		RunID:    run.ID,
		ByReason: map[domain.Reason]int{},
	}
	if run.Result == nil {
		return stats
	}

	stats.Discovered = run.Result.Discovered
	stats.Late = run.Result.Late
	stats.OnTime = len(run.Result.Records) - run.Result.Late
	stats.Invalid = len(run.Result.Invalid)
	for reason, n := range run.Result.CountByReason() {
		stats.ByReason[reason] = n
	}
	return stats
}

// Compare diffs the outcomes of two runs of the same batch. Lists follow
// the discovery order of the run they come from.
func Compare(base, head *domain.Run) *domain.RunDiff {
	diff := &domain.RunDiff{
		BaseRunID: base.ID,
		HeadRunID: head.ID,
		Promoted:  []string{},
		Regressed: []string{},
		Added:     []string{},
		Removed:   []string{},
	}

	baseOutcome := outcomes(base)
	headOutcome := outcomes(head)

	for _, name := range order(head) {
		before, seen := baseOutcome[name]
		after := headOutcome[name]
		switch {
		case !seen:
			diff.Added = append(diff.Added, name)
		case !before && after:
			diff.Promoted = append(diff.Promoted, name)
		case before && !after:
			diff.Regressed = append(diff.Regressed, name)
		}
	}
	for _, name := range order(base) {
		if _, ok := headOutcome[name]; !ok {
			diff.Removed = append(diff.Removed, name)
		}
	}
	return diff
}

// outcomes maps each repository to whether it was recorded
func outcomes(run *domain.Run) map[string]bool {
	m := make(map[string]bool)
	if run.Result == nil {
		return m
	}
	for _, rec := range run.Result.Records {
		m[rec.Repo] = true
	}
	for _, inv := range run.Result.Invalid {
		m[inv.Repo] = false
	}
	return m
}

// order returns record and invalid names. Records and invalids are each in
// discovery order; the interleaving between them is not preserved.
func order(run *domain.Run) []string {
	if run.Result == nil {
		return nil
	}
	names := make([]string, 0, len(run.Result.Records)+len(run.Result.Invalid))
	for _, rec := range run.Result.Records {
		names = append(names, rec.Repo)
	}
	return append(names, run.Result.InvalidNames()...)
}
