package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEscalationMessageIncludesDashboardLink(t *testing.T) {
	blocks := BuildEscalationMessage("t1", "fix bug", "fast", "strong", "https://dash.example.com")
	require.Len(t, blocks, 2)
}

func TestBuildMessagesOmitLinkWhenDashboardURLEmpty(t *testing.T) {
	blocks := BuildFailureMessage("t1", "fix bug", "exhausted retries", "")
	assert.Len(t, blocks, 1)
}
