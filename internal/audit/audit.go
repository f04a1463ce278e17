// Package audit writes the append-only mutation trail. The audit file is
// the only durable record of partial progress within a run: the absence of
// a line for an issue means that issue was not touched.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log appends mutation records to a single file.
// Format: TIMESTAMP|RUN_ID|ISSUE_KEY|ACTION|DETAILS
type Log struct {
	path  string
	runID string
	mu    sync.Mutex
}

// New creates an audit log writer for one run. The file and its directory
// are created on first append.
func New(path, runID string) *Log {
	return &Log{path: path, runID: runID}
}

// Record appends one mutation line. Unlike debug output, a failed audit
// append is a real error: callers must not continue mutating silently.
func (l *Log) Record(issueKey, action, details string) error {
	if issueKey == "" {
		issueKey = "none"
	}
	timestamp := time.Now().UTC().Format(time.RFC3339)
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n",
		timestamp, l.runID, issueKey, action, sanitize(details))

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// sanitize keeps each entry on a single line and free of the delimiter.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "/")
}
