package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mudrd8mz/moodle-local-ci/internal/audit"
	"github.com/mudrd8mz/moodle-local-ci/internal/config"
	"github.com/mudrd8mz/moodle-local-ci/internal/jira"
	"github.com/mudrd8mz/moodle-local-ci/internal/queue"
	"github.com/mudrd8mz/moodle-local-ci/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one queue management pass",
	Long: `Execute one full pass over the integration queue:

  step 0   hold new features/improvements missing the standard hold comment
  step 1   promote important issues into the current pool
  step 2a  backfill the current pool up to the threshold (feed mode)
  step 2b  hold every remaining candidate (hold mode, from the hold date on)`,
	RunE: runPass,
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "evaluate and report without mutating the tracker")
	runCmd.Flags().Bool("fail-fast", false, "abort the run on the first failed mutation")
	runCmd.Flags().String("hold-date", "", "override the configured hold date (YYYY-MM-DD)")
	runCmd.Flags().Int("current-min", 0, "override the minimum size of the current pool")
	runCmd.Flags().Int("move-max", 0, "override the maximum issues moved per backfill")
	rootCmd.AddCommand(runCmd)
}

// loadConfig loads the environment configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("hold-date") {
		cfg.Queue.HoldDate, _ = flags.GetString("hold-date")
	}
	if flags.Changed("current-min") {
		cfg.Queue.CurrentMin, _ = flags.GetInt("current-min")
	}
	if flags.Changed("move-max") {
		cfg.Queue.MoveMax, _ = flags.GetInt("move-max")
	}
	if flags.Changed("dry-run") {
		cfg.Run.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("fail-fast") {
		cfg.Run.FailFast, _ = flags.GetBool("fail-fast")
	}

	// Overrides go through the same validation as the environment.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newTracker(cfg *config.Config) *jira.Tracker {
	client := jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.Token)
	fields := jira.FieldIDs{
		Flag:     cfg.Jira.FlagField,
		Priority: cfg.Jira.PriorityField,
		MustFix:  cfg.Jira.MustFixField,
	}
	return jira.NewTracker(client, cfg.Jira.Project, fields, cfg.Jira.Transition)
}

func runPass(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	auditLog := audit.New(cfg.Run.AuditPath, runID)
	engine := queue.NewEngine(newTracker(cfg), auditLog, log, runID, queue.Options{
		HoldDate:   cfg.HoldDate(),
		CurrentMin: cfg.Queue.CurrentMin,
		MoveMax:    cfg.Queue.MoveMax,
		DryRun:     cfg.Run.DryRun,
		FailFast:   cfg.Run.FailFast,
	})

	result, runErr := engine.Run(ctx, time.Now())

	// Write the report even for aborted runs: partial results are exactly
	// what the operator needs to see then.
	if result != nil && cfg.Run.ReportPath != "" {
		if err := report.WriteCSV(cfg.Run.ReportPath, result); err != nil {
			log.Errorw("writing report failed", "path", cfg.Run.ReportPath, "error", err)
		}
	}
	if result != nil {
		cmd.Println(report.Summary(result))
	}

	if runErr != nil {
		return runErr
	}
	if _, _, failed := result.Counts(); failed > 0 {
		return fmt.Errorf("run completed with %d failed mutations, see %s", failed, cfg.Run.ReportPath)
	}
	return nil
}
