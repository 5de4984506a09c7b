package worker

import (
	"context"
	"strings"

	"github.com/undercity/undercity/pkg/models"
)

// handleVerificationFailure applies the escalation policy on a
// verification failure. It returns a non-nil TaskResult only when the
// loop should stop (force fail); a nil return means "another attempt
// was scheduled, keep
// looping".
func (w *Worker) handleVerificationFailure(ctx context.Context, st *state, outcome attemptOutcome) *models.TaskResult {
	category, message := primaryIssue(outcome.verdict)

	if w.Stores.Errors != nil && !st.autoRemediated {
		st.autoRemediated = true
		result := w.Stores.Errors.TryAutoRemediate(category, message, st.task.WorkingDirectory)
		if result.Applied {
			w.Logger.Info("worker: auto-remediation applied, re-verifying", "task", st.task.ID, "category", category)
			verdict, err := w.verify(ctx, st)
			if err == nil && verdict.Passed {
				return w.onVerificationPassed(ctx, st, verdict)
			}
		}
	}

	if w.Stores.Errors != nil {
		st.pendingSignature = w.Stores.Errors.RecordPendingError(st.task.ID, category, message, st.filesBefore)
	}

	return w.decideAfterFailure(st, category)
}

// primaryIssue picks the single issue the escalation policy reasons
// about: the first one, since the verification harness already orders
// critical checks ahead of optional ones.
func primaryIssue(v *models.Verdict) (models.IssueCategory, string) {
	if v == nil || len(v.Issues) == 0 {
		return models.CategoryUnknown, "verification failed with no detail"
	}
	return v.Issues[0].Category, v.Issues[0].Message
}

var seriousCategories = map[models.IssueCategory]bool{
	models.CategoryBuild:     true,
	models.CategoryTypecheck: true,
	models.CategoryTest:      true,
}

func isTestWritingObjective(objective string) bool {
	lower := strings.ToLower(objective)
	for _, kw := range []string{"test", "tests", "testing", "coverage"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// decideAfterFailure applies the following ordered rules:
//  1. zero files changed across two consecutive attempts -> decompose
//  2. already at the final tier -> retry until MaxStrongRetries
//  3. only trivial-category issues -> retry up to MaxRetriesPerTier, then escalate
//  4. any serious-category issue -> retry up to max(2, MaxRetriesPerTier-1) (+1 for test-writing tasks), then escalate
//  5. default -> retry up to MaxRetriesPerTier, then escalate
func (w *Worker) decideAfterFailure(st *state, category models.IssueCategory) *models.TaskResult {
	if st.lastVerdict != nil && st.lastVerdict.FilesChanged == 0 {
		st.zeroChangeStreak++
		if st.zeroChangeStreak >= 2 {
			return needsDecomposition("two consecutive attempts changed no files", nil)
		}
	} else {
		st.zeroChangeStreak = 0
	}

	atFinalTier := st.tier == models.TierStrong
	if atFinalTier {
		if st.sameTierRetries >= w.Limits.MaxStrongRetries {
			return failed(models.ErrTagVerificationFailed, "exhausted retries at the strongest tier")
		}
		return nil // retry at the same (final) tier
	}

	serious := seriousCategories[category]
	budget := w.Limits.MaxRetriesPerTier
	if serious {
		budget = maxInt(2, w.Limits.MaxRetriesPerTier-1)
		if isTestWritingObjective(st.task.Objective) {
			budget++
		}
	}

	if st.sameTierRetries < budget {
		return nil // retry at the same tier
	}

	w.escalateTier(st)
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// escalateTier requests a cheap-tier post-mortem, advances the tier,
// clears the conversation so the next attempt starts fresh, and resets
// the same-tier retry counter.
// At the strongest tier, context is re-prepared in full so the final
// attempt sees every learning store hit again.
func (w *Worker) escalateTier(st *state) {
	ctx := context.Background()
	if pm, err := w.callSingleTurn(ctx, models.TierCheap, buildPostMortemPrompt(st)); err == nil {
		st.postMortem = pm
	} else {
		w.Logger.Warn("worker: post-mortem call failed, escalating without one", "task", st.task.ID, "error", err)
	}

	next, ok := st.tier.Next()
	if !ok {
		next = models.TierStrong
	}
	st.tier = next
	st.conversationID = ""
	st.sameTierRetries = 0

	if st.tier == models.TierStrong {
		st.briefing = w.prepareContext(ctx, st)
	}
}

func buildPostMortemPrompt(st *state) string {
	reason := "verification kept failing"
	if st.lastVerdict != nil {
		reason = st.lastVerdict.Feedback
	}
	return "The previous attempts at this objective failed verification and are being escalated to a stronger model. " +
		"Summarize in a few sentences what was tried and why it likely failed, for the next attempt's benefit.\n\n" +
		"Objective: " + st.task.Objective + "\n\nLast verification feedback:\n" + reason
}
