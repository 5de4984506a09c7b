package worker

import (
	"context"
	"strings"

	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/models"
)

// briefing is the assembled context package for one task.
type briefing struct {
	TargetFiles       []string
	InjectedLearnings []*models.KnowledgeEntry
	FailureWarnings   []*models.ErrorPattern
	CoModHints        string
	FixSuggestions    string
	PreflightHint     string
	Plan              *ExecutionPlan
}

const injectedLearningsLimit = 5

// prepareContext resolves target files, attaches injected learnings,
// failure warnings, co-modification hints, and fix suggestions.
// Planning context is attached later once the plan exists.
func (w *Worker) prepareContext(ctx context.Context, st *state) briefing {
	b := briefing{TargetFiles: st.task.TargetFiles}

	if w.Stores.Knowledge != nil {
		b.InjectedLearnings = w.Stores.Knowledge.TopRelevant(st.task.Objective, injectedLearningsLimit)
		for _, e := range b.InjectedLearnings {
			st.injectedIDs = append(st.injectedIDs, e.ID)
		}
	}

	if w.Stores.Errors != nil {
		b.FailureWarnings = w.Stores.Errors.GetFailureWarningsForTask(st.task.TargetFiles)
		b.FixSuggestions = learning.FormatFixSuggestionsForPrompt(b.FailureWarnings)
	}

	if w.Stores.CoMod != nil && len(st.task.TargetFiles) > 0 {
		b.CoModHints = w.Stores.CoMod.FormatCoModificationHints(st.task.TargetFiles, 5)
	}

	b.PreflightHint = w.scanRecentCommitsForOverlap(ctx, st)
	return b
}

// scanRecentCommitsForOverlap scans recent commits for keyword
// overlap with the objective, and surfaces a warning hint if a recent
// commit plausibly already addressed
// the work.
func (w *Worker) scanRecentCommitsForOverlap(ctx context.Context, st *state) string {
	lines, err := w.repo.LogOneline(ctx, 20)
	if err != nil {
		return ""
	}
	keywords := learning.ExtractKeywords(st.task.Objective)
	if len(keywords) == 0 {
		return ""
	}
	for _, line := range lines {
		lower := strings.ToLower(line)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches >= 2 {
			return "A recent commit may already address this objective: " + line
		}
	}
	return ""
}

// formatBriefingForPrompt renders the non-plan portion of the briefing
// into a compact prompt section.
func (b briefing) formatForPrompt() string {
	var parts []string
	if entries := learning.FormatForPrompt(b.InjectedLearnings); entries != "" {
		parts = append(parts, entries)
	}
	if b.FixSuggestions != "" {
		parts = append(parts, b.FixSuggestions)
	}
	if b.CoModHints != "" {
		parts = append(parts, b.CoModHints)
	}
	if b.PreflightHint != "" {
		parts = append(parts, b.PreflightHint)
	}
	if len(b.FailureWarnings) > 0 {
		var w strings.Builder
		w.WriteString("Past permanent failures touching these files:\n")
		for _, p := range b.FailureWarnings {
			w.WriteString("- [" + string(p.Category) + "] " + p.MessagePrefix + "\n")
		}
		parts = append(parts, w.String())
	}
	if b.Plan != nil {
		parts = append(parts, b.Plan.formatForPrompt())
	}
	return strings.Join(parts, "\n")
}
