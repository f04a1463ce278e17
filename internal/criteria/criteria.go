// Package criteria provides the pure admission predicates for the
// integration queue. Predicates operate on issues already fetched from the
// tracker and never perform tracker access themselves, so the policy is
// unit-testable without a live instance.
package criteria

import (
	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// NeedsFeatureHold reports whether a candidate must be held because it adds
// behavior during the on-sync period. Issues already carrying the standard
// hold comment are excluded so reruns never double-post.
func NeedsFeatureHold(issue *types.Issue) bool {
	if !issue.Type.IsFeature() {
		return false
	}
	return !issue.HasCommentContaining(types.FeatureHoldComment)
}

// IsImportant reports whether a candidate must be promoted into the current
// pool regardless of its backfill rank. An issue is important when it is not
// held (by label or by the agreed-after-release marker) and at least one
// urgency signal is present:
//
//   - flagged must-fix for the upcoming release
//   - carries the mdlqa label
//   - priority Critical or Blocker
//   - has a security level set
//   - belongs to a watched component
func IsImportant(issue *types.Issue) bool {
	if issue.HasAnyLabel(types.LabelIntegrationHeld, types.LabelSecurityHeld) {
		return false
	}
	if issue.HasCommentContaining(types.AgreedAfterReleaseMarker) {
		return false
	}

	if issue.HasMustFixVersion {
		return true
	}
	if issue.HasLabel(types.LabelMDLQA) {
		return true
	}
	if issue.Priority >= types.PriorityCritical {
		return true
	}
	if issue.HasSecurityLevel {
		return true
	}
	for _, c := range types.WatchedComponents {
		if issue.HasComponent(c) {
			return true
		}
	}
	return false
}

// IsCandidate re-checks the candidate-pool precondition on a fetched issue.
// The remote filter should already guarantee this; the engine re-validates
// because the filter definitions live outside this codebase.
func IsCandidate(issue *types.Issue) bool {
	if issue.InIntegration {
		return false
	}
	return issue.Status == types.StatusWaitingForIntegration
}
