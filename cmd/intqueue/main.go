// Command intqueue manages admission into the integration review queue.
// It is designed to run from a scheduler (cron/CI): each invocation is a
// single stateless pass over the tracker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "intqueue",
	Short: "Manage the integration review queue",
	Long: `intqueue grooms the integration review queue of a Jira-style tracker.

Each run holds feature work during the on-sync period, promotes important
issues into the current integration pool, and either backfills the pool up
to its threshold (before the hold date) or freezes the whole queue (from
the hold date on).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the run logger. Console encoding: the structured output
// goes to the audit log and the CSV report, not here.
func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
