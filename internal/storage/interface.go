package storage

import (
	"context"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// SaveRun stores a completed run with its records and invalid submissions
	SaveRun(ctx context.Context, run *domain.Run) error

	// GetRun returns a run by id, NOT_FOUND when it does not exist
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// GetLatestRun returns the most recent run for org and prefix
	GetLatestRun(ctx context.Context, org, prefix string) (*domain.Run, error)

	// ListRuns returns runs for org, newest first, without their results
	ListRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
