package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/classroom-sync/internal/aggregator"
	"github.com/kurihiro0119/classroom-sync/internal/config"
	"github.com/kurihiro0119/classroom-sync/internal/domain"
	"github.com/kurihiro0119/classroom-sync/internal/gitsync"
	"github.com/kurihiro0119/classroom-sync/internal/lister"
	"github.com/kurihiro0119/classroom-sync/internal/observability"
	"github.com/kurihiro0119/classroom-sync/internal/pipeline"
	"github.com/kurihiro0119/classroom-sync/internal/report"
	"github.com/kurihiro0119/classroom-sync/internal/submission"
)

var (
	deadlineFlag  string
	destRootFlag  string
	reportDirFlag string
	workersFlag   int
	fetchFlag     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [prefix]",
	Short: "Fetch and validate every submission of an assignment",
	Long: `Clone every repository of the organization whose name starts with prefix,
read and validate its submission metadata and classify it against the deadline.

The roster is written to REPORT_DIR (students.json, invalids, summary.json)
and the run is stored in the run history unless STORAGE_TYPE is none.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func initSyncFlags() {
	syncCmd.Flags().StringVar(&deadlineFlag, "deadline", "", "deadline, YYYY-MM-DD-HH-MM in local time or RFC3339")
	syncCmd.Flags().StringVar(&destRootFlag, "dir", "", "destination root (overrides SYNC_DEST_ROOT)")
	syncCmd.Flags().StringVar(&reportDirFlag, "report-dir", "", "roster output directory (overrides REPORT_DIR)")
	syncCmd.Flags().IntVar(&workersFlag, "workers", 0, "number of repositories processed concurrently (overrides SYNC_WORKERS)")
	syncCmd.Flags().BoolVar(&fetchFlag, "fetch", false, "pull working copies that already exist")
}

// syncConfig applies command line overrides to the loaded configuration
func syncConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if len(args) == 1 {
		cfg = cfg.WithPrefix(args[0])
	}
	if deadlineFlag != "" {
		deadline, err := config.ParseDeadline(deadlineFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid deadline: %w", err)
		}
		cfg = cfg.WithDeadline(deadline)
	}
	if destRootFlag != "" {
		cfg.DestRoot = destRootFlag
	}
	if reportDirFlag != "" {
		cfg.ReportDir = reportDirFlag
	}
	if workersFlag != 0 {
		cfg.Workers = workersFlag
	}
	if cmd.Flags().Changed("fetch") {
		cfg.FetchExisting = fetchFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := syncConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	orch := pipeline.NewOrchestrator(
		lister.NewGitHubLister(cfg.GitHubToken, logger),
		gitsync.NewSynchronizer(gitsync.NewGoGit(cfg.GitHubToken), gitsync.Options{
			Host:          cfg.Host,
			Org:           cfg.Org,
			CloneTimeout:  cfg.CloneTimeout,
			FetchExisting: cfg.FetchExisting,
		}, logger, metrics),
		submission.NewReader(cfg.MetadataFile, cfg.ReadTimeout),
		submission.NewValidator(submission.ValidatorOptions{
			EmailDomain:      cfg.EmailDomain,
			EmailMatchPrefix: cfg.EmailMatchPrefix,
		}),
		logger,
		metrics,
	)

	if !outputJSON {
		fmt.Printf("Collecting submissions for %s/%s*\n", cfg.Org, cfg.Prefix)
		if cfg.Deadline != nil {
			fmt.Printf("Deadline: %s\n", formatDeadline(cfg.Deadline))
		}
	}

	var progress pipeline.ProgressCallback
	if !outputJSON {
		progress = func(repo string, p float64) {
			fmt.Printf("\rProgress: %.1f%% (%s)", p*100, repo)
		}
	}

	run, err := orch.Run(ctx, pipeline.OptionsFromConfig(cfg), progress)
	if !outputJSON {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if err := report.Write(cfg.ReportDir, run); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}
	if err := saveRun(context.WithoutCancel(ctx), cfg, run, logger); err != nil {
		logger.Warn("run not stored", zap.String("runId", run.ID), zap.Error(err))
	}

	if outputJSON {
		return printJSON(report.NewSummary(run))
	}

	if len(run.Result.Invalid) > 0 {
		printInvalidTable(run.Result.Invalid)
	}
	printSummaryLine(aggregator.Stats(run))
	fmt.Printf("Roster written to %s (run %s)\n", cfg.ReportDir, run.ID)
	return nil
}

// saveRun stores run in the run history. Storage errors never fail a sync
// since the roster files are already written.
func saveRun(ctx context.Context, cfg *config.Config, run *domain.Run, logger *zap.Logger) error {
	if cfg.StorageType == "none" {
		return nil
	}
	store, err := getStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	logger.Debug("run stored", zap.String("runId", run.ID), zap.String("storage", cfg.StorageType))
	return nil
}
