package learning

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/undercity/undercity/pkg/models"
)

// KnowledgeStore wraps the persisted learning-extraction memory.
type KnowledgeStore struct {
	path string
	data *models.KnowledgeStore
}

// LoadKnowledgeStore loads the store from path, defaulting to empty on
// absence or corruption.
func LoadKnowledgeStore(path string) (*KnowledgeStore, error) {
	data := models.NewKnowledgeStore()
	_, err := loadJSON(path, data)
	if err != nil {
		return nil, err
	}
	return &KnowledgeStore{path: path, data: data}, nil
}

// Save persists the store atomically.
func (k *KnowledgeStore) Save() error {
	return saveJSON(k.path, k.data)
}

// insightMarkers are heuristic phrases that mark a transcript sentence as
// a candidate learning.
var insightMarkers = []string{
	"i discovered", "the key insight", "it turns out", "the root cause",
	"the trick is", "important:", "note that", "the fix was",
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?]\s+|\n+)`)

// ExtractFromTranscript scans an LLM transcript for sentences matching a
// known insight marker and stores each as a new knowledge entry keyed by
// the task objective's action keywords.
func (k *KnowledgeStore) ExtractFromTranscript(objective, transcript string) []*models.KnowledgeEntry {
	keywords := ExtractKeywords(objective)
	lowerTranscript := strings.ToLower(transcript)

	var found []*models.KnowledgeEntry
	for _, sentence := range sentenceSplit.Split(transcript, -1) {
		lower := strings.ToLower(sentence)
		matched := false
		for _, marker := range insightMarkers {
			if strings.Contains(lower, marker) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		entry := &models.KnowledgeEntry{
			ID:        uuid.NewString(),
			Objective: objective,
			Keywords:  keywords,
			Text:      strings.TrimSpace(sentence),
			CreatedAt: time.Now(),
		}
		k.data.Entries = append(k.data.Entries, entry)
		found = append(found, entry)
	}
	_ = lowerTranscript
	return found
}

// keywordOverlap counts how many of a's keywords also appear in b.
func keywordOverlap(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, k := range b {
		set[k] = true
	}
	count := 0
	for _, k := range a {
		if set[k] {
			count++
		}
	}
	return count
}

// TopRelevant returns up to limit knowledge entries ranked by keyword
// overlap with objective, most relevant first, for use as injected
// learnings in a task's context.
func (k *KnowledgeStore) TopRelevant(objective string, limit int) []*models.KnowledgeEntry {
	keywords := ExtractKeywords(objective)
	if len(keywords) == 0 || len(k.data.Entries) == 0 {
		return nil
	}

	type scored struct {
		entry *models.KnowledgeEntry
		score int
	}
	var ranked []scored
	for _, e := range k.data.Entries {
		score := keywordOverlap(keywords, e.Keywords)
		if score > 0 {
			ranked = append(ranked, scored{e, score})
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*models.KnowledgeEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

// MarkUsed records whether an injected learning was used successfully or
// unsuccessfully, driving future eviction.
func (k *KnowledgeStore) MarkUsed(id string, successful bool) {
	for _, e := range k.data.Entries {
		if e.ID != id {
			continue
		}
		if successful {
			e.UsedSuccessfully++
		} else {
			e.UsedUnsuccessfully++
		}
		return
	}
}

// FormatForPrompt renders entries as a compact prompt snippet.
func FormatForPrompt(entries []*models.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant learnings from past tasks:\n")
	for _, e := range entries {
		b.WriteString("- " + e.Text + "\n")
	}
	return b.String()
}
