package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/models"
)

func TestSeriousCategoriesIsTypecheckBuildTest(t *testing.T) {
	assert.True(t, seriousCategories[models.CategoryTypecheck])
	assert.True(t, seriousCategories[models.CategoryBuild])
	assert.True(t, seriousCategories[models.CategoryTest])
	assert.False(t, seriousCategories[models.CategorySecurity], "security issues get the default retry budget, not the serious one")
	assert.False(t, seriousCategories[models.CategoryLint])
}

func TestDecideAfterFailureGivesTestWritingTasksOneExtraRetryOnSeriousIssue(t *testing.T) {
	mock := &llmclient.MockClient{Responses: []llmclient.MockResponse{
		{Text: "post-mortem summary"}, {Text: "post-mortem summary"}, {Text: "post-mortem summary"},
	}}
	w := New(mock, nil, Stores{}, Limits{MaxRetriesPerTier: 3}, nil, nil)

	nonTestState := &state{tier: models.TierCheap, task: Task{Objective: "fix the build error"}}
	for i := 0; i < maxInt(2, 3-1); i++ {
		nonTestState.sameTierRetries = i
		result := w.decideAfterFailure(nonTestState, models.CategoryTest)
		assert.Nil(t, result, "must keep retrying within budget")
	}
	nonTestState.sameTierRetries = maxInt(2, 3-1)
	result := w.decideAfterFailure(nonTestState, models.CategoryTest)
	assert.Nil(t, result, "escalates the tier rather than failing outright")
	assert.Equal(t, models.TierMid, nonTestState.tier, "budget exhausted at cheap tier escalates to mid")

	testState := &state{tier: models.TierCheap, task: Task{Objective: "add tests for the parser"}}
	testState.sameTierRetries = maxInt(2, 3-1)
	result = w.decideAfterFailure(testState, models.CategoryTest)
	assert.Nil(t, result, "the test-writing task gets one extra retry before escalating")
	assert.Equal(t, models.TierCheap, testState.tier, "still at cheap tier thanks to the extra retry")
}
