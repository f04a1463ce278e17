package queue

import (
	"sort"

	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// RankCandidates orders candidates for threshold backfill, best first:
// integration priority, then severity, then community votes, and among
// full ties the longest-stale issue (oldest last comment) wins so nothing
// starves at the bottom of the queue. The input slice is not modified.
func RankCandidates(issues []*types.Issue) []*types.Issue {
	ranked := make([]*types.Issue, len(issues))
	copy(ranked, issues)

	sort.SliceStable(ranked, func(a, b int) bool {
		ia, ib := ranked[a], ranked[b]
		if ia.IntegrationPriority != ib.IntegrationPriority {
			return ia.IntegrationPriority > ib.IntegrationPriority
		}
		if ia.Priority != ib.Priority {
			return ia.Priority > ib.Priority
		}
		if ia.Votes != ib.Votes {
			return ia.Votes > ib.Votes
		}
		// Zero means no comments at all; that is as stale as it gets.
		if ia.LastCommentAt.IsZero() != ib.LastCommentAt.IsZero() {
			return ia.LastCommentAt.IsZero()
		}
		return ia.LastCommentAt.Before(ib.LastCommentAt)
	})

	return ranked
}
