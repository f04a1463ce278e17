package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mudrd8mz/moodle-local-ci/internal/audit"
	"github.com/mudrd8mz/moodle-local-ci/internal/types"
)

// fakeTracker implements Tracker in memory and records mutations in order.
type fakeTracker struct {
	candidates []*types.Issue
	current    int

	labels     []string // "KEY:label"
	comments   []string // "KEY:body"
	promotions []string // "KEY:comment"

	failPromote map[string]error
	failLabel   map[string]error
}

func (f *fakeTracker) SearchCandidates(ctx context.Context) ([]*types.Issue, error) {
	return f.candidates, nil
}

func (f *fakeTracker) CountCurrent(ctx context.Context) (int, error) {
	return f.current, nil
}

func (f *fakeTracker) AddLabel(ctx context.Context, key, label string) error {
	if err := f.failLabel[key]; err != nil {
		return err
	}
	f.labels = append(f.labels, key+":"+label)
	return nil
}

func (f *fakeTracker) AddComment(ctx context.Context, key, body string) error {
	f.comments = append(f.comments, key+":"+body)
	return nil
}

func (f *fakeTracker) Promote(ctx context.Context, key, comment string) error {
	if err := f.failPromote[key]; err != nil {
		return err
	}
	f.promotions = append(f.promotions, key+":"+comment)
	f.current++
	return nil
}

func newTestEngine(t *testing.T, tracker Tracker, opts Options) *Engine {
	t.Helper()
	auditLog := audit.New(filepath.Join(t.TempDir(), "audit.log"), "run-test")
	return NewEngine(tracker, auditLog, zap.NewNop().Sugar(), "run-test", opts)
}

func feedOptions() Options {
	return Options{
		HoldDate:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		CurrentMin: 6,
		MoveMax:    3,
	}
}

var feedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
var holdNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func waitingBug(key string) *types.Issue {
	return &types.Issue{Key: key, Type: types.TypeBug, Status: types.StatusWaitingForIntegration}
}

func TestRunHoldsUnheldFeatures(t *testing.T) {
	feature := waitingBug("MDL-1")
	feature.Type = types.TypeNewFeature
	improvement := waitingBug("MDL-2")
	improvement.Type = types.TypeImprovement
	alreadyHeld := waitingBug("MDL-3")
	alreadyHeld.Type = types.TypeNewFeature
	alreadyHeld.Comments = []types.Comment{{Body: types.FeatureHoldComment}}
	bug := waitingBug("MDL-4")

	tracker := &fakeTracker{
		candidates: []*types.Issue{feature, improvement, alreadyHeld, bug},
		current:    6,
	}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"MDL-1:" + types.LabelIntegrationHeld,
		"MDL-2:" + types.LabelIntegrationHeld,
	}, tracker.labels)
	assert.ElementsMatch(t, []string{
		"MDL-1:" + types.FeatureHoldComment,
		"MDL-2:" + types.FeatureHoldComment,
	}, tracker.comments)

	held, promoted, failed := result.Counts()
	assert.Equal(t, 2, held)
	assert.Equal(t, 0, promoted)
	assert.Equal(t, 0, failed)
}

func TestRunStepZeroIsIdempotent(t *testing.T) {
	feature := waitingBug("MDL-1")
	feature.Type = types.TypeNewFeature

	tracker := &fakeTracker{candidates: []*types.Issue{feature}, current: 6}
	engine := newTestEngine(t, tracker, feedOptions())

	_, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)
	require.Len(t, tracker.comments, 1)

	// Second run sees the comment posted by the first.
	engine2 := newTestEngine(t, tracker, feedOptions())
	result, err := engine2.Run(context.Background(), feedNow)
	require.NoError(t, err)

	assert.Len(t, tracker.comments, 1, "hold comment must not be re-posted")
	held, _, _ := result.Counts()
	assert.Zero(t, held)
}

func TestRunPromotesImportantIssues(t *testing.T) {
	blocker := waitingBug("MDL-1")
	blocker.Priority = types.PriorityBlocker
	mustFix := waitingBug("MDL-2")
	mustFix.HasMustFixVersion = true
	plain := waitingBug("MDL-3")
	heldBlocker := waitingBug("MDL-4")
	heldBlocker.Priority = types.PriorityBlocker
	heldBlocker.Labels = []string{types.LabelIntegrationHeld}

	tracker := &fakeTracker{
		candidates: []*types.Issue{blocker, mustFix, plain, heldBlocker},
		current:    6,
	}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	require.Len(t, tracker.promotions, 2)
	assert.Contains(t, tracker.promotions[0], "MDL-1:")
	assert.Contains(t, tracker.promotions[0], "reason: important")
	assert.Contains(t, tracker.promotions[0], "role: integrator")

	_, promoted, _ := result.Counts()
	assert.Equal(t, 2, promoted)
}

func TestRunBackfillsUpToMoveMax(t *testing.T) {
	var candidates []*types.Issue
	for i := 1; i <= 5; i++ {
		issue := waitingBug(fmt.Sprintf("MDL-%d", i))
		issue.Votes = i // MDL-5 best ranked
		candidates = append(candidates, issue)
	}

	tracker := &fakeTracker{candidates: candidates, current: 4}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	require.Len(t, tracker.promotions, 3)
	assert.Contains(t, tracker.promotions[0], "MDL-5:")
	assert.Contains(t, tracker.promotions[1], "MDL-4:")
	assert.Contains(t, tracker.promotions[2], "MDL-3:")
	assert.Contains(t, tracker.promotions[0], "reason: threshold")
	assert.Equal(t, 7, tracker.current)

	assert.Equal(t, 4, result.Current)
	_, promoted, _ := result.Counts()
	assert.Equal(t, 3, promoted)
}

func TestRunNoBackfillAtThreshold(t *testing.T) {
	tracker := &fakeTracker{
		candidates: []*types.Issue{waitingBug("MDL-1"), waitingBug("MDL-2")},
		current:    6,
	}
	engine := newTestEngine(t, tracker, feedOptions())

	_, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	assert.Empty(t, tracker.promotions)
}

func TestRunHoldModeFreezesQueue(t *testing.T) {
	a := waitingBug("MDL-1")
	b := waitingBug("MDL-2")
	blocker := waitingBug("MDL-3")
	blocker.Priority = types.PriorityBlocker

	tracker := &fakeTracker{candidates: []*types.Issue{a, b, blocker}, current: 1}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), holdNow)
	require.NoError(t, err)
	assert.Equal(t, ModeHold, result.Mode)

	// The important blocker is still promoted by step 1; the rest are
	// frozen instead of backfilled, despite current being below the minimum.
	require.Len(t, tracker.promotions, 1)
	assert.Contains(t, tracker.promotions[0], "MDL-3:")

	assert.ElementsMatch(t, []string{
		"MDL-1:" + types.LabelIntegrationHeld,
		"MDL-2:" + types.LabelIntegrationHeld,
	}, tracker.labels)
	assert.ElementsMatch(t, []string{
		"MDL-1:" + types.LateCycleHoldComment,
		"MDL-2:" + types.LateCycleHoldComment,
	}, tracker.comments)
}

func TestRunHoldModeIsIdempotent(t *testing.T) {
	a := waitingBug("MDL-1")
	a.Labels = []string{types.LabelIntegrationHeld}
	a.Comments = []types.Comment{{Body: types.LateCycleHoldComment}}

	// Already-held issues are excluded by the remote filter in production;
	// even if the filter lags, the marker check must keep the run a no-op.
	b := waitingBug("MDL-2")
	b.Comments = []types.Comment{{Body: types.LateCycleHoldComment}}

	tracker := &fakeTracker{candidates: []*types.Issue{a, b}, current: 0}
	engine := newTestEngine(t, tracker, feedOptions())

	_, err := engine.Run(context.Background(), holdNow)
	require.NoError(t, err)

	assert.Empty(t, tracker.labels)
	assert.Empty(t, tracker.comments)
}

func TestRunSkipsAgreedAfterReleaseIssues(t *testing.T) {
	agreed := waitingBug("MDL-1")
	agreed.Priority = types.PriorityBlocker
	agreed.Comments = []types.Comment{{Body: "It was " + types.AgreedAfterReleaseMarker + " by the team."}}

	tracker := &fakeTracker{candidates: []*types.Issue{agreed}, current: 0}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), holdNow)
	require.NoError(t, err)

	assert.Empty(t, tracker.promotions)
	assert.Empty(t, tracker.labels)
	assert.Zero(t, result.Candidates)
}

func TestRunDropsIssuesAlreadyInIntegration(t *testing.T) {
	leaked := waitingBug("MDL-1")
	leaked.InIntegration = true
	leaked.Priority = types.PriorityBlocker

	tracker := &fakeTracker{candidates: []*types.Issue{leaked}, current: 4}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	assert.Empty(t, tracker.promotions, "promoted issues must never be re-promoted")
	assert.Zero(t, result.Candidates)
}

func TestRunContinuesAfterMutationFailure(t *testing.T) {
	var candidates []*types.Issue
	for i := 1; i <= 3; i++ {
		issue := waitingBug(fmt.Sprintf("MDL-%d", i))
		issue.Priority = types.PriorityBlocker
		candidates = append(candidates, issue)
	}

	tracker := &fakeTracker{
		candidates:  candidates,
		current:     6,
		failPromote: map[string]error{"MDL-2": fmt.Errorf("boom")},
	}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err, "batch must continue past a single failure")

	require.Len(t, tracker.promotions, 2)
	_, promoted, failed := result.Counts()
	assert.Equal(t, 2, promoted)
	assert.Equal(t, 1, failed)
}

func TestRunFailFastAborts(t *testing.T) {
	a := waitingBug("MDL-1")
	a.Priority = types.PriorityBlocker
	b := waitingBug("MDL-2")
	b.Priority = types.PriorityBlocker

	tracker := &fakeTracker{
		candidates:  []*types.Issue{a, b},
		current:     6,
		failPromote: map[string]error{"MDL-1": fmt.Errorf("boom")},
	}
	opts := feedOptions()
	opts.FailFast = true
	engine := newTestEngine(t, tracker, opts)

	_, err := engine.Run(context.Background(), feedNow)
	require.Error(t, err)
	assert.Empty(t, tracker.promotions, "nothing after the failure may run")
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	feature := waitingBug("MDL-1")
	feature.Type = types.TypeNewFeature
	blocker := waitingBug("MDL-2")
	blocker.Priority = types.PriorityBlocker

	tracker := &fakeTracker{candidates: []*types.Issue{feature, blocker}, current: 0}
	opts := feedOptions()
	opts.DryRun = true
	engine := newTestEngine(t, tracker, opts)

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	assert.Empty(t, tracker.labels)
	assert.Empty(t, tracker.comments)
	assert.Empty(t, tracker.promotions)

	// Decisions are still reported.
	held, promoted, _ := result.Counts()
	assert.Equal(t, 1, held)
	assert.NotZero(t, promoted)
}

func TestRunLabelFailureRecordedPerIssue(t *testing.T) {
	f1 := waitingBug("MDL-1")
	f1.Type = types.TypeNewFeature
	f2 := waitingBug("MDL-2")
	f2.Type = types.TypeNewFeature

	tracker := &fakeTracker{
		candidates: []*types.Issue{f1, f2},
		current:    6,
		failLabel:  map[string]error{"MDL-1": fmt.Errorf("forbidden")},
	}
	engine := newTestEngine(t, tracker, feedOptions())

	result, err := engine.Run(context.Background(), feedNow)
	require.NoError(t, err)

	held, _, failed := result.Counts()
	assert.Equal(t, 1, held)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"MDL-2:" + types.LabelIntegrationHeld}, tracker.labels)
}
