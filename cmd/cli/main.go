package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/classroom-sync/internal/aggregator"
	"github.com/kurihiro0119/classroom-sync/internal/config"
	"github.com/kurihiro0119/classroom-sync/internal/domain"
	"github.com/kurihiro0119/classroom-sync/internal/lister"
	"github.com/kurihiro0119/classroom-sync/internal/observability"
	"github.com/kurihiro0119/classroom-sync/internal/storage"
	"github.com/kurihiro0119/classroom-sync/internal/storage/postgres"
	"github.com/kurihiro0119/classroom-sync/internal/storage/sqlite"
	"github.com/kurihiro0119/classroom-sync/pkg/client"
)

var (
	cfgFile    string
	outputJSON bool
	orgFlag    string
	remote     bool
	runsLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "classroom-sync",
	Short: "Classroom submission fetcher",
	Long: `A CLI tool for collecting student submissions from a GitHub organization.

Every repository whose name starts with an assignment prefix is cloned once,
its submission metadata file is read and validated, and each valid submission
is classified as on time or late against the deadline.`,
	SilenceUsage: true,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated GitHub user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var showCmd = &cobra.Command{
	Use:   "show [prefix]",
	Short: "Show the latest run of an assignment",
	Long:  `Display the submissions recorded by the most recent run for a prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShowLatest,
}

var showRunCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Show a specific run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var showInvalidCmd = &cobra.Command{
	Use:   "invalid [prefix]",
	Short: "Show invalid submissions of the latest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowInvalid,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var diffCmd = &cobra.Command{
	Use:   "diff [base-run] [head-run]",
	Short: "Show submissions whose outcome changed between two runs",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (environment and .env are always read)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&orgFlag, "org", "", "GitHub organization (overrides GITHUB_ORG)")

	for _, cmd := range []*cobra.Command{showCmd, runsCmd, diffCmd} {
		cmd.PersistentFlags().BoolVar(&remote, "remote", false, "read runs from the HTTP API at API_ENDPOINT")
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")

	initSyncFlags()

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showRunCmd)
	showCmd.AddCommand(showInvalidCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(diffCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if orgFlag != "" {
		cfg.Org = orgFlag
	}
	return cfg, nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	case "none":
		return nil, fmt.Errorf("run history is disabled (STORAGE_TYPE=none)")
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// getRuns returns the run read model, local storage or the HTTP API.
// The returned func releases it.
func getRuns(cfg *config.Config) (aggregator.Aggregator, func(), error) {
	if remote {
		return client.NewClient(cfg.APIEndpoint), func() {}, nil
	}

	if err := cfg.ValidateStorage(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := getStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return aggregator.NewAggregator(store), func() { store.Close() }, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("invalid config: %w", &config.ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"})
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	login, err := lister.NewGitHubLister(cfg.GitHubToken, logger).Principal(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	if outputJSON {
		return printJSON(map[string]string{"login": login})
	}
	fmt.Printf("Logged in to GitHub as %s\n", login)
	return nil
}

func runShowLatest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, release, err := getRuns(cfg)
	if err != nil {
		return err
	}
	defer release()

	run, err := runs.GetLatestRun(cmd.Context(), cfg.Org, args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	return printRun(run)
}

func runShowRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, release, err := getRuns(cfg)
	if err != nil {
		return err
	}
	defer release()

	run, err := runs.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	return printRun(run)
}

func runShowInvalid(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, release, err := getRuns(cfg)
	if err != nil {
		return err
	}
	defer release()

	run, err := runs.GetLatestRun(cmd.Context(), cfg.Org, args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	invalid := []domain.InvalidSubmission{}
	if run.Result != nil {
		invalid = run.Result.Invalid
	}
	if outputJSON {
		return printJSON(invalid)
	}

	fmt.Printf("\nInvalid submissions: %s/%s (run %s)\n\n", run.Org, run.Prefix, run.ID)
	printInvalidTable(invalid)
	return nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, release, err := getRuns(cfg)
	if err != nil {
		return err
	}
	defer release()

	list, err := runs.ListRuns(cmd.Context(), cfg.Org, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if outputJSON {
		return printJSON(list)
	}

	fmt.Printf("\nRuns: %s\n\n", cfg.Org)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Prefix", "Status", "Deadline", "Started", "Finished"})
	for _, run := range list {
		table.Append([]string{
			run.ID,
			run.Prefix,
			string(run.Status),
			formatDeadline(run.Deadline),
			run.StartedAt.Local().Format(domain.SubmitTimeLayout),
			run.FinishedAt.Local().Format(domain.SubmitTimeLayout),
		})
	}
	table.Render()

	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, release, err := getRuns(cfg)
	if err != nil {
		return err
	}
	defer release()

	diff, err := runs.CompareRuns(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to compare runs: %w", err)
	}
	if outputJSON {
		return printJSON(diff)
	}

	fmt.Printf("\nChanges from %s to %s\n\n", diff.BaseRunID, diff.HeadRunID)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Change"})
	appendAll := func(names []string, change string) {
		for _, name := range names {
			table.Append([]string{name, change})
		}
	}
	appendAll(diff.Promoted, "now valid")
	appendAll(diff.Regressed, "now invalid")
	appendAll(diff.Added, "new")
	appendAll(diff.Removed, "gone")
	table.Render()

	return nil
}

func printRun(run *domain.Run) error {
	if outputJSON {
		return printJSON(run)
	}

	fmt.Printf("\nRun %s: %s/%s\n", run.ID, run.Org, run.Prefix)
	fmt.Printf("Deadline: %s\n\n", formatDeadline(run.Deadline))
	if run.Result == nil {
		fmt.Println("No result stored for this run")
		return nil
	}

	printRecordTable(run.Result.Records)
	if len(run.Result.Invalid) > 0 {
		fmt.Println()
		printInvalidTable(run.Result.Invalid)
	}
	fmt.Println()
	printSummaryLine(aggregator.Stats(run))
	return nil
}

func printRecordTable(records []domain.SubmissionRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "ID", "Name", "Email", "Username", "Submitted", "Status"})
	for _, rec := range records {
		table.Append([]string{
			rec.Repo,
			rec.ID,
			rec.Name,
			rec.Email,
			rec.Username,
			rec.SubmitTime,
			string(rec.Status),
		})
	}
	table.Render()
}

func printInvalidTable(invalid []domain.InvalidSubmission) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Reason", "Fields"})
	for _, inv := range invalid {
		table.Append([]string{inv.Repo, string(inv.Reason), strings.Join(inv.Fields, ", ")})
	}
	table.Render()
}

func printSummaryLine(stats *domain.RunStats) {
	fmt.Printf("%d repositories found, %d valid (%d late), %d invalid\n",
		stats.Discovered, stats.OnTime+stats.Late, stats.Late, stats.Invalid)
}

func formatDeadline(deadline *time.Time) string {
	if deadline == nil {
		return "none"
	}
	return deadline.Local().Format(domain.SubmitTimeLayout)
}
