package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mudrd8mz/moodle-local-ci/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue pool sizes and the current mode",
	Long: `Show the sizes of the candidates and current pools and which mode
(feed or hold) a run would use right now. Read-only: no mutations.`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := newTracker(cfg)

	candidates, err := tracker.SearchCandidates(ctx)
	if err != nil {
		return err
	}
	current, err := tracker.CountCurrent(ctx)
	if err != nil {
		return err
	}

	mode := queue.SelectMode(time.Now(), cfg.HoldDate())

	cmd.Printf("mode:        %s (hold date %s)\n", mode, cfg.Queue.HoldDate)
	cmd.Printf("candidates:  %d\n", len(candidates))
	cmd.Printf("current:     %d (minimum %d)\n", current, cfg.Queue.CurrentMin)
	return nil
}
