package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INTQUEUE_JIRA_URL", "https://tracker.example.com")
	t.Setenv("INTQUEUE_JIRA_TOKEN", "secret")
	t.Setenv("INTQUEUE_JIRA_PROJECT", "MDL")
	t.Setenv("INTQUEUE_QUEUE_HOLD_DATE", "2024-06-10")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Queue.CurrentMin)
	assert.Equal(t, 3, cfg.Queue.MoveMax)
	assert.Equal(t, "customfield_10110", cfg.Jira.FlagField)
	assert.Equal(t, "customfield_12210", cfg.Jira.PriorityField)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Run.DryRun)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), cfg.HoldDate())
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTQUEUE_QUEUE_CURRENT_MIN", "10")
	t.Setenv("INTQUEUE_QUEUE_MOVE_MAX", "5")
	t.Setenv("INTQUEUE_RUN_DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Queue.CurrentMin)
	assert.Equal(t, 5, cfg.Queue.MoveMax)
	assert.True(t, cfg.Run.DryRun)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"missing url", "INTQUEUE_JIRA_URL"},
		{"missing token", "INTQUEUE_JIRA_TOKEN"},
		{"missing project", "INTQUEUE_JIRA_PROJECT"},
		{"missing hold date", "INTQUEUE_QUEUE_HOLD_DATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadBadHoldDate(t *testing.T) {
	bad := []string{"2024-6-10", "10-06-2024", "20240610", "not-a-date", "2024-13-01"}
	for _, date := range bad {
		t.Run(date, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("INTQUEUE_QUEUE_HOLD_DATE", date)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "hold_date")
		})
	}
}

func TestLoadBadThresholds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTQUEUE_QUEUE_CURRENT_MIN", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "current_min")
}
