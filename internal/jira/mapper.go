package jira

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// FieldIDs names the instance-specific custom fields the engine reads.
type FieldIDs struct {
	// Flag is the "currently in integration" field; any non-empty value
	// means the issue sits in the current pool.
	Flag string

	// Priority is the integration priority rank (numeric, higher first).
	Priority string

	// MustFix is the must-fix version picker; any non-empty value marks
	// the issue as must-fix for the upcoming release.
	MustFix string
}

// ToDomain converts a raw Jira issue into the engine's domain form.
func ToDomain(ji *Issue, ids FieldIDs) *types.Issue {
	issue := &types.Issue{
		Key:              ji.Key,
		Summary:          ji.Fields.Summary,
		Labels:           ji.Fields.Labels,
		HasSecurityLevel: ji.Fields.Security != nil,
	}

	if ji.Fields.IssueType != nil {
		issue.Type = types.IssueType(ji.Fields.IssueType.Name)
	}
	if ji.Fields.Status != nil {
		issue.Status = ji.Fields.Status.Name
	}
	if ji.Fields.Priority != nil {
		issue.Priority = types.ParsePriority(ji.Fields.Priority.Name)
	} else {
		issue.Priority = types.PriorityMajor
	}
	if ji.Fields.Votes != nil {
		issue.Votes = ji.Fields.Votes.Votes
	}
	for _, c := range ji.Fields.Components {
		issue.Components = append(issue.Components, c.Name)
	}

	issue.InIntegration = customFieldSet(ji.Fields.Custom[ids.Flag])
	issue.HasMustFixVersion = customFieldSet(ji.Fields.Custom[ids.MustFix])
	issue.IntegrationPriority = customFieldInt(ji.Fields.Custom[ids.Priority])

	if ji.Fields.Comment != nil {
		for _, rc := range ji.Fields.Comment.Comments {
			comment := types.Comment{Body: rc.Body}
			if rc.Author != nil {
				comment.Author = rc.Author.DisplayName
			}
			if t, err := ParseTimestamp(rc.Created); err == nil {
				comment.Created = t
				if t.After(issue.LastCommentAt) {
					issue.LastCommentAt = t
				}
			}
			issue.Comments = append(issue.Comments, comment)
		}
	}

	return issue
}

// customFieldSet reports whether a raw custom field value is present and
// not null. Select fields come back as objects, version pickers as arrays;
// presence of anything non-null counts as set.
func customFieldSet(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return len(arr) > 0
	}
	return true
}

// customFieldInt extracts a numeric custom field value, tolerating both
// bare numbers and option objects with a numeric value. Missing or
// unparseable values rank lowest.
func customFieldInt(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var opt struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &opt); err == nil && opt.Value != "" {
		var v int
		if _, err := fmt.Sscanf(opt.Value, "%d", &v); err == nil {
			return v
		}
	}
	return 0
}

// ParseTimestamp parses Jira's timestamp format into a time.Time.
// Jira uses ISO 8601 with timezone: 2024-01-15T10:30:00.000+0000 or 2024-01-15T10:30:00.000Z
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}
