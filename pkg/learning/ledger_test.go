package learning

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/models"
)

func TestLedgerRecordOutcomeInvariants(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capability-ledger.json")

	ledger, err := LoadLedger(path)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		success := i%3 != 0
		escalated := i%5 == 0
		ledger.RecordOutcome("optimize database performance", models.TierMid, success, escalated, 1000, 5000, 1)
	}

	for _, pattern := range ledger.Snapshot().Patterns {
		for _, stats := range pattern.ByModel {
			assert.LessOrEqual(t, stats.Successes, stats.Attempts, "I1: successes <= attempts")
			assert.LessOrEqual(t, stats.Escalations, stats.Attempts, "I1: escalations <= attempts")
			assert.GreaterOrEqual(t, stats.Attempts, 0)
			assert.GreaterOrEqual(t, stats.Successes, 0)
			assert.GreaterOrEqual(t, stats.Escalations, 0)
		}
	}
}

func TestLedgerEmptyObjectiveYieldsNoKeywords(t *testing.T) {
	dir := t.TempDir()
	ledger, err := LoadLedger(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	before := ledger.Snapshot().TotalEntries
	ledger.RecordOutcome("", models.TierCheap, true, false, 0, 0, 0)
	assert.Equal(t, before+1, ledger.Snapshot().TotalEntries, "B1: totalEntries increments even with no keywords")
	assert.Empty(t, ledger.Snapshot().Patterns, "B1: zero keywords extracted means zero new patterns")
}

func TestLedgerPunctuationOnlyObjectiveYieldsNoPatterns(t *testing.T) {
	dir := t.TempDir()
	ledger, err := LoadLedger(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	ledger.RecordOutcome("!!! ??? ...", models.TierCheap, true, false, 0, 0, 0)
	assert.Empty(t, ledger.Snapshot().Patterns, "B2: punctuation-only objective creates zero patterns")
}

func TestLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	ledger, err := LoadLedger(path)
	require.NoError(t, err)
	ledger.RecordOutcome("fix the login bug", models.TierCheap, true, false, 500, 1200, 0)
	ledger.RecordOutcome("fix the login bug", models.TierMid, false, true, 800, 3000, 2)
	require.NoError(t, ledger.Save())

	reloaded, err := LoadLedger(path)
	require.NoError(t, err)

	assert.Equal(t, ledger.Snapshot().TotalEntries, reloaded.Snapshot().TotalEntries, "R1: round trip preserves totals")
	assert.Equal(t, ledger.Snapshot().Patterns["fix"].ByModel[models.TierCheap].Successes,
		reloaded.Snapshot().Patterns["fix"].ByModel[models.TierCheap].Successes)
}

func TestLedgerRecommendationPrefersMidOnTokenCost(t *testing.T) {
	// S6: keyword "optimize" with mid-tier attempts=10 successes=9 retries=12
	// tokens=30000, strong-tier attempts=5 successes=5 retries=5 tokens=50000.
	dir := t.TempDir()
	ledger, err := LoadLedger(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		ledger.RecordOutcome("optimize performance", models.TierMid, i < 9, false, 3000, 1000, 0)
	}
	ledger.data.Patterns["optimize"].ByModel[models.TierMid].TotalRetries = 12
	for i := 0; i < 5; i++ {
		ledger.RecordOutcome("optimize performance", models.TierStrong, true, false, 10000, 1000, 0)
	}
	ledger.data.Patterns["optimize"].ByModel[models.TierStrong].TotalRetries = 5

	rec, ok := ledger.Recommend("optimize performance")
	require.True(t, ok)
	assert.Equal(t, models.TierMid, rec.Tier)
	assert.Greater(t, ledger.Confidence(), 0.3)
}

func TestLedgerRecommendIsInconclusiveWithoutEnoughSamples(t *testing.T) {
	dir := t.TempDir()
	ledger, err := LoadLedger(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	// One attempt per tier, below minSampleAttempts and with no escalation
	// signal: nothing here should count as a conclusive recommendation.
	ledger.RecordOutcome("rename the helper", models.TierCheap, true, false, 100, 100, 0)

	_, ok := ledger.Recommend("rename the helper")
	assert.False(t, ok, "too few samples must not masquerade as a conclusive recommendation")
}

func TestLedgerCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	require.NoError(t, writeRaw(path, "{not json"))

	ledger, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Empty(t, ledger.Snapshot().Patterns)
}
