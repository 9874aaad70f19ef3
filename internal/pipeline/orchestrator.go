package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurihiro0119/classroom-sync/internal/config"
	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
	"github.com/kurihiro0119/classroom-sync/internal/lister"
	"github.com/kurihiro0119/classroom-sync/internal/observability"
	"github.com/kurihiro0119/classroom-sync/internal/submission"
)

// Syncer ensures a working copy exists and reports its last commit time
type Syncer interface {
	Sync(ctx context.Context, name, destRoot string) (domain.WorkingCopy, error)
}

// MetadataReader reads the raw metadata lines of a working copy
type MetadataReader interface {
	Read(ctx context.Context, localPath string) (submission.RawFields, error)
}

// MetadataValidator turns raw metadata into a validated identity
type MetadataValidator interface {
	Validate(raw submission.RawFields) (domain.Identity, error)
}

// ProgressCallback is called once per finished repository
type ProgressCallback func(repo string, progress float64)

// Options are the per-run settings
type Options struct {
	Org      string
	Prefix   string
	DestRoot string
	Deadline *time.Time
	Workers  int
}

// OptionsFromConfig extracts run options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Org:      cfg.Org,
		Prefix:   cfg.Prefix,
		DestRoot: cfg.DestRoot,
		Deadline: cfg.Deadline,
		Workers:  cfg.Workers,
	}
}

// Orchestrator drives discovery, synchronization, reading, validation and
// classification over every repository of a batch
type Orchestrator struct {
	lister    lister.Lister
	syncer    Syncer
	reader    MetadataReader
	validator MetadataValidator
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(l lister.Lister, s Syncer, r MetadataReader, v MetadataValidator, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lister:    l,
		syncer:    s,
		reader:    r,
		validator: v,
		logger:    logger,
		metrics:   metrics,
	}
}

// outcome is the terminal state of one repository: exactly one field is set
type outcome struct {
	record  *domain.SubmissionRecord
	invalid *domain.InvalidSubmission
}

// Run executes one batch. Authentication, missing organization, rate
// limiting and cancellation abort the run with an error and no result;
// every other failure is recorded per repository.
func (o *Orchestrator) Run(ctx context.Context, opts Options, onProgress ProgressCallback) (*domain.Run, error) {
	run := &domain.Run{
		ID:        uuid.New().String(),
		Org:       opts.Org,
		Prefix:    opts.Prefix,
		Deadline:  opts.Deadline,
		StartedAt: time.Now(),
	}
	logger := o.logger.With(zap.String("runId", run.ID))

	principal, err := o.lister.Principal(ctx)
	if err != nil {
		o.metrics.IncRun("failed")
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	names, err := o.lister.List(ctx, opts.Org, opts.Prefix)
	if err != nil {
		o.metrics.IncRun("failed")
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	if len(names) == 0 {
		o.metrics.IncRun("failed")
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("repositories with prefix %q in %s", opts.Prefix, opts.Org))
	}

	logger.Info("starting batch",
		zap.String("principal", principal),
		zap.String("org", opts.Org),
		zap.String("prefix", opts.Prefix),
		zap.Int("repositories", len(names)),
	)

	outcomes, err := o.processAll(ctx, run.ID, names, opts, onProgress)
	if err != nil {
		o.metrics.IncRun("canceled")
		return nil, err
	}

	run.Result = collect(names, outcomes)
	run.Status = domain.RunStatusCompleted
	run.FinishedAt = time.Now()
	o.metrics.IncRun(string(domain.RunStatusCompleted))

	logger.Info("batch finished",
		zap.Int("discovered", run.Result.Discovered),
		zap.Int("recorded", len(run.Result.Records)),
		zap.Int("late", run.Result.Late),
		zap.Int("invalid", len(run.Result.Invalid)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)

	return run, nil
}

// processAll runs the per-repository units on a bounded pool. Results are
// stored by discovery index so completion order does not matter.
func (o *Orchestrator) processAll(ctx context.Context, runID string, names []string, opts Options, onProgress ProgressCallback) ([]outcome, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]outcome, len(names))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var done int64
	var progressMu sync.Mutex

dispatch:
	for i, name := range names {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(index int, repo string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			o.metrics.IncInFlight()
			outcomes[index] = o.process(ctx, runID, repo, opts)
			o.metrics.DecInFlight()

			finished := atomic.AddInt64(&done, 1)
			if onProgress != nil {
				progressMu.Lock()
				onProgress(repo, float64(finished)/float64(len(names)))
				progressMu.Unlock()
			}
		}(i, name)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run canceled after %d of %d repositories: %w", atomic.LoadInt64(&done), len(names), err)
	}
	return outcomes, nil
}

// process moves one repository from DISCOVERED to RECORDED or INVALID
func (o *Orchestrator) process(ctx context.Context, runID, name string, opts Options) outcome {
	logger := observability.RepoLogger(o.logger, runID, name)

	wc, err := o.syncer.Sync(ctx, name, opts.DestRoot)
	if err != nil {
		return o.invalid(logger, name, domain.ReasonCloneFailed, "sync", err)
	}
	logger.Debug("synchronized", zap.String("path", wc.Path), zap.Bool("cloned", wc.Cloned))

	raw, err := o.reader.Read(ctx, wc.Path)
	if err != nil {
		return o.invalid(logger, name, domain.ReasonMissingMetadata, "read", err)
	}

	identity, err := o.validator.Validate(raw)
	if err != nil {
		return o.invalid(logger, name, domain.ReasonFieldValidationFailed, "validate", err)
	}

	status := submission.Classify(wc.CommitTime, opts.Deadline)
	record := domain.NewSubmissionRecord(identity, name, wc.Path, wc.CommitTime, status)
	o.metrics.IncRepository(string(status))
	logger.Debug("recorded", zap.String("status", string(status)))

	return outcome{record: &record}
}

func (o *Orchestrator) invalid(logger *zap.Logger, name string, reason domain.Reason, stage string, err error) outcome {
	inv := &domain.InvalidSubmission{
		Repo:   name,
		Reason: reason,
		Detail: err.Error(),
	}
	var fieldErr *apperrors.FieldError
	if errors.As(err, &fieldErr) {
		inv.Fields = fieldErr.Fields
	}

	o.metrics.IncRepository(string(reason))
	logger.Warn("invalid submission",
		zap.String("stage", stage),
		zap.String("reason", string(reason)),
		zap.Strings("fields", inv.Fields),
		zap.Error(err),
	)
	return outcome{invalid: inv}
}

// collect merges outcomes in discovery order into an immutable BatchResult
func collect(names []string, outcomes []outcome) *domain.BatchResult {
	result := &domain.BatchResult{
		Records:    make([]domain.SubmissionRecord, 0, len(names)),
		Discovered: len(names),
		Invalid:    []domain.InvalidSubmission{},
	}
	for _, out := range outcomes {
		switch {
		case out.record != nil:
			result.Records = append(result.Records, *out.record)
			if out.record.Status == domain.StatusLate {
				result.Late++
			}
		case out.invalid != nil:
			result.Invalid = append(result.Invalid, *out.invalid)
		}
	}
	return result
}
