package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// Tracker adapts the raw client to the engine's tracker contract. It owns
// the JQL for the two pool views so the query language never leaks into the
// decision logic.
type Tracker struct {
	client     *Client
	project    string
	fields     FieldIDs
	transition string
}

// NewTracker creates a tracker adapter for one project.
func NewTracker(client *Client, project string, fields FieldIDs, transition string) *Tracker {
	return &Tracker{
		client:     client,
		project:    project,
		fields:     fields,
		transition: transition,
	}
}

// candidatesJQL selects the candidates pool: waiting for integration
// review, integration flag unset, not already held. The marker-comment
// exclusion cannot be expressed in JQL and is applied by the engine.
func (t *Tracker) candidatesJQL() string {
	return fmt.Sprintf(
		"project = %q AND status = %q AND cf[%s] is EMPTY AND (labels is EMPTY OR labels not in (%q))",
		t.project, types.StatusWaitingForIntegration,
		customFieldNumber(t.fields.Flag), types.LabelIntegrationHeld,
	)
}

// currentJQL selects the current pool: same status with the flag set.
func (t *Tracker) currentJQL() string {
	return fmt.Sprintf(
		"project = %q AND status = %q AND cf[%s] is not EMPTY",
		t.project, types.StatusWaitingForIntegration,
		customFieldNumber(t.fields.Flag),
	)
}

// SearchCandidates fetches the full candidates view in domain form.
func (t *Tracker) SearchCandidates(ctx context.Context) ([]*types.Issue, error) {
	raw, err := t.client.SearchIssues(ctx, t.candidatesJQL(), 0,
		t.fields.Flag, t.fields.Priority, t.fields.MustFix)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	issues := make([]*types.Issue, 0, len(raw))
	for i := range raw {
		issues = append(issues, ToDomain(&raw[i], t.fields))
	}
	return issues, nil
}

// CountCurrent returns the size of the current pool.
func (t *Tracker) CountCurrent(ctx context.Context) (int, error) {
	n, err := t.client.CountIssues(ctx, t.currentJQL())
	if err != nil {
		return 0, fmt.Errorf("count current pool: %w", err)
	}
	return n, nil
}

// AddLabel adds a label to an issue.
func (t *Tracker) AddLabel(ctx context.Context, key, label string) error {
	return t.client.AddLabel(ctx, key, label)
}

// AddComment appends a comment to an issue.
func (t *Tracker) AddComment(ctx context.Context, key, body string) error {
	return t.client.AddComment(ctx, key, body)
}

// Promote moves an issue into the current pool. The integration flag is
// hidden from the edit screen, so the update rides on the privileged
// self-transition, which also posts the audit comment.
func (t *Tracker) Promote(ctx context.Context, key, comment string) error {
	fields := map[string]interface{}{
		t.fields.Flag: map[string]string{"value": "Yes"},
	}
	return t.client.Transition(ctx, key, t.transition, fields, comment)
}

// customFieldNumber strips the customfield_ prefix for JQL cf[] clauses.
func customFieldNumber(id string) string {
	return strings.TrimPrefix(id, "customfield_")
}
