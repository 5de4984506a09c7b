package router

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/models"
)

func TestScoreComplexityFromKeywords(t *testing.T) {
	assert.Equal(t, models.ComplexityCritical, ScoreComplexity("fix the authentication bypass", nil))
	assert.Equal(t, models.ComplexityComplex, ScoreComplexity("refactor the scheduler", nil))
	assert.Equal(t, models.ComplexityTrivial, ScoreComplexity("fix a typo in the README", nil))
	assert.Equal(t, models.ComplexityStandard, ScoreComplexity("add a helper function", nil))
}

func TestScoreComplexityFromMetricsEscalatesWithSize(t *testing.T) {
	small := ScoreComplexity("", &models.FileMetrics{LineCount: 10, FunctionCount: 1, CodeHealthScore: 0.9})
	large := ScoreComplexity("", &models.FileMetrics{
		LineCount: 3000, FunctionCount: 60, CrossPackageTouch: 8, CodeHealthScore: 0.1, HotspotHits: 20,
	})
	assert.Less(t, int(small), int(large))
}

func TestRouteDefaultsWithoutLearningStores(t *testing.T) {
	r := New(nil, nil, nil)
	d := r.Route("fix a typo", nil, models.TierStrong)
	assert.Equal(t, models.TierCheap, d.StartingTier)
	assert.True(t, d.ReviewPolicy.Enable)
}

func TestRouteTestWritingOverridesToMinimumMid(t *testing.T) {
	r := New(nil, nil, nil)
	d := r.Route("fix a typo", nil, models.TierStrong)
	require.Equal(t, models.TierCheap, d.StartingTier)

	d = r.Route("add tests for the typo fix", nil, models.TierStrong)
	assert.GreaterOrEqual(t, d.StartingTier, models.TierMid)
}

func TestRouteNeverExceedsMaxTierCap(t *testing.T) {
	r := New(nil, nil, nil)
	d := r.Route("fix the authentication bypass", nil, models.TierCheap)
	assert.Equal(t, models.TierCheap, d.StartingTier)
}

func TestRouteCriticalComplexityEnablesAnnealingWhenUncapped(t *testing.T) {
	r := New(nil, nil, nil)
	d := r.Route("fix the authentication bypass", nil, models.TierStrong)
	assert.Equal(t, models.ComplexityCritical, d.Complexity)
	assert.True(t, d.ReviewPolicy.Annealing)
	assert.Equal(t, models.TierStrong, d.ReviewPolicy.MaxReviewTier)
}

func TestRouteSkipThresholdEscalatesTier(t *testing.T) {
	dir := t.TempDir()
	profile, err := learning.LoadProfile(filepath.Join(dir, "routing-profile.json"))
	require.NoError(t, err)
	require.True(t, profile.RefreshIfDue(5, learning.DefaultMinNewTasks, []learning.CellSample{
		{Tier: models.TierCheap, Complexity: models.ComplexityStandard, Attempts: 10, Successes: 2},
	}))

	r := New(nil, profile, nil)
	d := r.Route("add a helper function", nil, models.TierStrong)
	assert.Greater(t, d.StartingTier, models.TierCheap)
}

func TestRouteKeepsStepFourChoiceWhenLedgerIsInconclusive(t *testing.T) {
	dir := t.TempDir()
	ledger, err := learning.LoadLedger(filepath.Join(dir, "capability-ledger.json"))
	require.NoError(t, err)
	// A single matching attempt is far below the ledger's confidence
	// threshold, so Recommend must come back inconclusive and Route must
	// keep the keyword/complexity-derived tier rather than overriding it.
	ledger.RecordOutcome("fix the parser", models.TierCheap, true, false, 100, 100, 0)

	r := New(ledger, nil, nil)
	d := r.Route("fix the parser crash", nil, models.TierStrong)
	assert.Equal(t, models.TierMid, d.StartingTier, "keyword/complexity default for a standard-complexity fix, not overridden")
}

func TestRouteLedgerRecommendationOverridesWhenConclusive(t *testing.T) {
	dir := t.TempDir()
	ledger, err := learning.LoadLedger(filepath.Join(dir, "capability-ledger.json"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ledger.RecordOutcome("fix the parser", models.TierStrong, true, false, 100, 1000, 0)
	}

	r := New(ledger, nil, nil)
	d := r.Route("fix the parser crash", nil, models.TierStrong)
	assert.Equal(t, models.TierStrong, d.StartingTier)
}
