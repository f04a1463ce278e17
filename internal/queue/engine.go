// Package queue implements the admission and eviction decisions for the
// integration review pipeline: holding feature work during the on-sync
// period, promoting important issues, backfilling the current pool up to
// its threshold, and freezing the queue after the hold date.
package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mudrd8mz/moodle-local-ci/internal/audit"
	"github.com/mudrd8mz/moodle-local-ci/internal/criteria"
	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// Tracker is the engine's view of the issue tracker. The jira package
// provides the production implementation; tests use a fake.
type Tracker interface {
	// SearchCandidates returns the candidates pool view.
	SearchCandidates(ctx context.Context) ([]*types.Issue, error)

	// CountCurrent returns the size of the current pool.
	CountCurrent(ctx context.Context) (int, error)

	// AddLabel adds a label to an issue (idempotent server-side).
	AddLabel(ctx context.Context, key, label string) error

	// AddComment appends a comment to an issue (never idempotent).
	AddComment(ctx context.Context, key, body string) error

	// Promote moves an issue into the current pool with an audit comment.
	Promote(ctx context.Context, key, comment string) error
}

// Promotion reasons recorded in audit comments and run results.
const (
	ReasonImportant = "important"
	ReasonThreshold = "threshold"
)

// Step identifiers for run results.
const (
	StepFeatureHold = "0"
	StepImportant   = "1"
	StepThreshold   = "2a"
	StepLateHold    = "2b"
)

// Options configures one engine instance.
type Options struct {
	HoldDate   time.Time
	CurrentMin int
	MoveMax    int

	// ActorRole names the role the bot acts under; it appears in the
	// promotion audit comments.
	ActorRole string

	// DryRun evaluates and reports without mutating the tracker.
	DryRun bool

	// FailFast aborts the run on the first failed mutation instead of
	// recording the failure and continuing with the rest of the batch.
	FailFast bool
}

// ActionResult records the outcome of one decision on one issue.
type ActionResult struct {
	Step   string
	Issue  string
	Action string
	Reason string
	Err    error
}

// RunResult is the outcome of a full pass.
type RunResult struct {
	RunID      string
	Mode       Mode
	Candidates int
	Current    int
	Actions    []ActionResult
}

// Counts returns the number of held, promoted and failed issues.
func (r *RunResult) Counts() (held, promoted, failed int) {
	for _, a := range r.Actions {
		switch {
		case a.Err != nil:
			failed++
		case a.Action == "hold":
			held++
		case a.Action == "promote":
			promoted++
		}
	}
	return held, promoted, failed
}

// Engine runs one decision pass over the queue. It holds no state between
// runs; every decision is re-derived from current tracker data.
type Engine struct {
	tracker Tracker
	audit   *audit.Log
	log     *zap.SugaredLogger
	opts    Options
	runID   string
}

// NewEngine creates an engine for a single run.
func NewEngine(tracker Tracker, auditLog *audit.Log, log *zap.SugaredLogger, runID string, opts Options) *Engine {
	if opts.ActorRole == "" {
		opts.ActorRole = "integrator"
	}
	return &Engine{
		tracker: tracker,
		audit:   auditLog,
		log:     log,
		opts:    opts,
		runID:   runID,
	}
}

// Run executes the full pass: step 0 (feature holds), step 1 (important
// promotions), then either step 2a (threshold backfill) or step 2b
// (late-cycle freeze) depending on the mode derived from now.
func (e *Engine) Run(ctx context.Context, now time.Time) (*RunResult, error) {
	mode := SelectMode(now, e.opts.HoldDate)
	result := &RunResult{RunID: e.runID, Mode: mode}

	e.log.Infow("run started",
		"run_id", e.runID,
		"mode", mode,
		"hold_date", e.opts.HoldDate.Format("2006-01-02"),
		"dry_run", e.opts.DryRun,
	)

	fetched, err := e.tracker.SearchCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("query candidates: %w", err)
	}

	// Re-validate the pool preconditions locally. The remote filter should
	// already enforce them, but its definition lives outside this codebase.
	candidates := make([]*types.Issue, 0, len(fetched))
	for _, issue := range fetched {
		if !criteria.IsCandidate(issue) {
			e.log.Debugw("dropping non-candidate from remote filter result", "issue", issue.Key)
			continue
		}
		if issue.HasCommentContaining(types.AgreedAfterReleaseMarker) {
			continue
		}
		candidates = append(candidates, issue)
	}
	result.Candidates = len(candidates)

	// Step 0: hold feature work that slipped into the queue unheld.
	var featureHolds []*types.Issue
	for _, issue := range candidates {
		if criteria.NeedsFeatureHold(issue) {
			featureHolds = append(featureHolds, issue)
		}
	}
	if err := e.holdIssues(ctx, result, StepFeatureHold, featureHolds, types.FeatureHoldComment); err != nil {
		return result, err
	}

	// Step 1: promote everything important, unbounded and unordered.
	for _, issue := range candidates {
		if issue.InIntegration || issue.HasLabel(types.LabelIntegrationHeld) {
			continue
		}
		if !criteria.IsImportant(issue) {
			continue
		}
		if err := e.promote(ctx, result, StepImportant, issue, ReasonImportant); err != nil {
			return result, err
		}
	}

	switch mode {
	case ModeFeed:
		if err := e.admitToThreshold(ctx, result, candidates); err != nil {
			return result, err
		}
	case ModeHold:
		// Step 2b: the queue is frozen, hold every remaining candidate.
		var remaining []*types.Issue
		for _, issue := range candidates {
			if issue.InIntegration || issue.HasLabel(types.LabelIntegrationHeld) {
				continue
			}
			remaining = append(remaining, issue)
		}
		if err := e.holdIssues(ctx, result, StepLateHold, remaining, types.LateCycleHoldComment); err != nil {
			return result, err
		}
	}

	held, promoted, failed := result.Counts()
	e.log.Infow("run finished",
		"run_id", e.runID,
		"mode", mode,
		"candidates", result.Candidates,
		"current", result.Current,
		"held", held,
		"promoted", promoted,
		"failed", failed,
	)
	return result, nil
}

// admitToThreshold implements step 2a: when the current pool is below the
// configured minimum, promote up to MoveMax best-ranked candidates.
func (e *Engine) admitToThreshold(ctx context.Context, result *RunResult, candidates []*types.Issue) error {
	current, err := e.tracker.CountCurrent(ctx)
	if err != nil {
		return fmt.Errorf("query current pool: %w", err)
	}
	result.Current = current

	if current >= e.opts.CurrentMin {
		e.log.Infow("current pool at or above threshold, no backfill",
			"current", current, "current_min", e.opts.CurrentMin)
		return nil
	}

	var eligible []*types.Issue
	for _, issue := range candidates {
		if issue.InIntegration || issue.HasLabel(types.LabelIntegrationHeld) {
			continue
		}
		eligible = append(eligible, issue)
	}

	ranked := RankCandidates(eligible)
	if len(ranked) > e.opts.MoveMax {
		ranked = ranked[:e.opts.MoveMax]
	}

	e.log.Infow("backfilling current pool",
		"current", current, "current_min", e.opts.CurrentMin,
		"eligible", len(eligible), "moving", len(ranked))

	for _, issue := range ranked {
		if err := e.promote(ctx, result, StepThreshold, issue, ReasonThreshold); err != nil {
			return err
		}
	}
	return nil
}

// holdIssues applies the held marking (label + standard comment) to each
// issue not already carrying the marker comment. Failures are recorded
// per-issue and the batch continues unless FailFast is set.
func (e *Engine) holdIssues(ctx context.Context, result *RunResult, step string, issues []*types.Issue, comment string) error {
	for _, issue := range issues {
		if issue.HasCommentContaining(comment) {
			continue
		}

		err := e.holdOne(ctx, issue, comment)
		result.Actions = append(result.Actions, ActionResult{
			Step:   step,
			Issue:  issue.Key,
			Action: "hold",
			Err:    err,
		})
		if err != nil {
			e.log.Errorw("hold failed", "issue", issue.Key, "step", step, "error", err)
			if e.opts.FailFast {
				return fmt.Errorf("hold %s: %w", issue.Key, err)
			}
			continue
		}

		// Mirror the mutation locally so later steps re-derive correctly.
		issue.Labels = append(issue.Labels, types.LabelIntegrationHeld)
		issue.Comments = append(issue.Comments, types.Comment{Body: comment})
	}
	return nil
}

func (e *Engine) holdOne(ctx context.Context, issue *types.Issue, comment string) error {
	if e.opts.DryRun {
		e.log.Infow("would hold issue", "issue", issue.Key)
		return nil
	}

	if err := e.tracker.AddLabel(ctx, issue.Key, types.LabelIntegrationHeld); err != nil {
		return err
	}
	if err := e.audit.Record(issue.Key, "label", "added "+types.LabelIntegrationHeld); err != nil {
		return err
	}
	if err := e.tracker.AddComment(ctx, issue.Key, comment); err != nil {
		return err
	}
	return e.audit.Record(issue.Key, "comment", "posted hold comment")
}

// promote moves one issue into the current pool with an audit comment
// naming the reason and the acting role.
func (e *Engine) promote(ctx context.Context, result *RunResult, step string, issue *types.Issue, reason string) error {
	comment := fmt.Sprintf(
		"Moving this issue into the current integration queue (reason: %s, role: %s).",
		reason, e.opts.ActorRole)

	var err error
	if e.opts.DryRun {
		e.log.Infow("would promote issue", "issue", issue.Key, "reason", reason)
	} else {
		err = e.tracker.Promote(ctx, issue.Key, comment)
		if err == nil {
			err = e.audit.Record(issue.Key, "promote", "reason: "+reason)
		}
	}

	result.Actions = append(result.Actions, ActionResult{
		Step:   step,
		Issue:  issue.Key,
		Action: "promote",
		Reason: reason,
		Err:    err,
	})

	if err != nil {
		e.log.Errorw("promote failed", "issue", issue.Key, "reason", reason, "error", err)
		if e.opts.FailFast {
			return fmt.Errorf("promote %s: %w", issue.Key, err)
		}
		return nil
	}

	issue.InIntegration = true
	return nil
}
