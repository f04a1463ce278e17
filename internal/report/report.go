// Package report renders run outcomes: a CSV file for downstream tooling
// and a styled terminal summary for operators.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mudrd8mz/moodle-local-ci/internal/queue"
)

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorHead = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}

	passStyle = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle = lipgloss.NewStyle().Foreground(colorFail)
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHead)
)

// csvHeader is the column layout of the results file.
var csvHeader = []string{"run_id", "mode", "step", "issue", "action", "reason", "error"}

// WriteCSV writes one row per decided issue. The file is truncated per run;
// the audit log, not this file, is the durable history.
func WriteCSV(path string, result *queue.RunResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for _, a := range result.Actions {
		errText := ""
		if a.Err != nil {
			errText = a.Err.Error()
		}
		row := []string{result.RunID, string(result.Mode), a.Step, a.Issue, a.Action, a.Reason, errText}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Summary renders a short human-readable digest of the run.
func Summary(result *queue.RunResult) string {
	held, promoted, failed := result.Counts()

	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("Integration queue run %s", result.RunID)))
	b.WriteString("\n")

	modeLine := fmt.Sprintf("mode: %s", result.Mode)
	if result.Mode == queue.ModeHold {
		b.WriteString(warnStyle.Render(modeLine))
	} else {
		b.WriteString(passStyle.Render(modeLine))
	}
	b.WriteString(fmt.Sprintf("\ncandidates: %d", result.Candidates))
	if result.Mode == queue.ModeFeed {
		b.WriteString(fmt.Sprintf("\ncurrent pool: %d", result.Current))
	}
	b.WriteString(fmt.Sprintf("\nheld: %d, promoted: %d", held, promoted))

	if failed > 0 {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("failed: %d", failed)))
		for _, a := range result.Actions {
			if a.Err != nil {
				b.WriteString("\n")
				b.WriteString(failStyle.Render(fmt.Sprintf("  ✗ %s %s: %v", a.Action, a.Issue, a.Err)))
			}
		}
	}

	b.WriteString("\n")
	return b.String()
}
