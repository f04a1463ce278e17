// Package types defines the core data structures for the integration queue manager.
package types

import (
	"strings"
	"time"
)

// IssueType is the tracker-side issue classification.
type IssueType string

const (
	TypeBug         IssueType = "Bug"
	TypeNewFeature  IssueType = "New Feature"
	TypeImprovement IssueType = "Improvement"
	TypeTask        IssueType = "Task"
)

// IsFeature returns true for the issue types that are held late in the cycle
// (anything that adds behavior rather than fixing it).
func (t IssueType) IsFeature() bool {
	return t == TypeNewFeature || t == TypeImprovement
}

// Priority is an ordered severity scale. Higher values are more severe.
type Priority int

const (
	PriorityTrivial Priority = iota
	PriorityMinor
	PriorityMajor
	PriorityCritical
	PriorityBlocker
)

// ParsePriority maps a tracker priority name to the ordered scale.
// Unknown names map to Major, the tracker's default.
func ParsePriority(name string) Priority {
	switch strings.ToLower(name) {
	case "trivial":
		return PriorityTrivial
	case "minor":
		return PriorityMinor
	case "major":
		return PriorityMajor
	case "critical":
		return PriorityCritical
	case "blocker":
		return PriorityBlocker
	default:
		return PriorityMajor
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityTrivial:
		return "Trivial"
	case PriorityMinor:
		return "Minor"
	case PriorityMajor:
		return "Major"
	case PriorityCritical:
		return "Critical"
	case PriorityBlocker:
		return "Blocker"
	default:
		return "Major"
	}
}

// Label names the engine reads and writes.
const (
	LabelIntegrationHeld = "integration_held"
	LabelSecurityHeld    = "security_held"
	LabelMDLQA           = "mdlqa"
)

// StatusWaitingForIntegration is the workflow state shared by both pools;
// membership in the current pool is distinguished by the integration flag.
const StatusWaitingForIntegration = "Waiting for integration review"

// WatchedComponents are the components whose issues are always considered
// important regardless of priority or votes.
var WatchedComponents = []string{
	"Privacy",
	"Automated functional tests (behat)",
	"Unit tests",
}

// Standard comment texts. These are the markers the engine searches for
// when deciding whether an issue was already processed, so they must stay
// stable across releases.
const (
	// FeatureHoldComment is posted when a new feature or improvement is
	// held during the on-sync period (step 0).
	FeatureHoldComment = "This issue has been held for after the upcoming major release " +
		"because the on-sync period only accepts bug fixes. " +
		"It will be considered for integration again once the release is out."

	// LateCycleHoldComment is posted when the hold date has passed and the
	// whole candidates queue is frozen (step 2b).
	LateCycleHoldComment = "We have reached the cutoff point for the upcoming release and " +
		"the integration queue is now closed. This issue has been held and " +
		"will be considered for integration after the release."

	// AgreedAfterReleaseMarker flags issues that were explicitly agreed to
	// land after the release; candidates carrying it are never touched.
	AgreedAfterReleaseMarker = "agreed to be fixed after the release"
)

// Comment is a single tracker comment.
type Comment struct {
	Author  string
	Body    string
	Created time.Time
}

// Issue is the engine's view of a tracker issue. It is populated once per
// run from the tracker and never written back directly; mutations go
// through the tracker client.
type Issue struct {
	Key        string
	Summary    string
	Type       IssueType
	Status     string
	Priority   Priority
	Labels     []string
	Votes      int
	Components []string
	Comments   []Comment

	// HasSecurityLevel is true when a security level is set on the issue;
	// the level itself does not matter to the engine.
	HasSecurityLevel bool

	// HasMustFixVersion is true when the issue is flagged as must-fix for
	// the upcoming release.
	HasMustFixVersion bool

	// InIntegration marks membership in the current pool.
	InIntegration bool

	// IntegrationPriority ranks candidates for backfill; higher first.
	IntegrationPriority int

	// LastCommentAt is the timestamp of the most recent comment, zero when
	// the issue has no comments.
	LastCommentAt time.Time
}

// HasLabel reports whether the issue carries the given label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// HasAnyLabel reports whether the issue carries at least one of the labels.
func (i *Issue) HasAnyLabel(labels ...string) bool {
	for _, l := range labels {
		if i.HasLabel(l) {
			return true
		}
	}
	return false
}

// HasCommentContaining reports whether any comment body contains the given
// text, case-insensitively. Marker detection must not depend on comment
// formatting, so substring match is deliberate.
func (i *Issue) HasCommentContaining(text string) bool {
	needle := strings.ToLower(text)
	for _, c := range i.Comments {
		if strings.Contains(strings.ToLower(c.Body), needle) {
			return true
		}
	}
	return false
}

// HasComponent reports whether the issue belongs to the given component.
func (i *Issue) HasComponent(component string) bool {
	for _, c := range i.Components {
		if c == component {
			return true
		}
	}
	return false
}
