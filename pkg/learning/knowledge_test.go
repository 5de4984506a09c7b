package learning

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeExtractFromTranscriptMatchesMarkers(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadKnowledgeStore(filepath.Join(dir, "storage.json"))
	require.NoError(t, err)

	transcript := "I read the file. The root cause was a missing nil check in the parser. Then I fixed it."
	found := store.ExtractFromTranscript("fix the parser crash", transcript)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Text, "root cause")
}

func TestKnowledgeTopRelevantRanksByOverlap(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadKnowledgeStore(filepath.Join(dir, "storage.json"))
	require.NoError(t, err)

	store.ExtractFromTranscript("fix login bug", "Note that the session token expires early.")
	store.ExtractFromTranscript("refactor auth module", "The key insight is that login uses a stale cache; fix by invalidating it.")

	top := store.TopRelevant("fix login again", 5)
	require.NotEmpty(t, top)
}

func TestKnowledgeMarkUsed(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadKnowledgeStore(filepath.Join(dir, "storage.json"))
	require.NoError(t, err)

	found := store.ExtractFromTranscript("fix bug", "I discovered the cache was stale.")
	require.Len(t, found, 1)

	store.MarkUsed(found[0].ID, true)
	assert.Equal(t, 1, found[0].UsedSuccessfully)
}
