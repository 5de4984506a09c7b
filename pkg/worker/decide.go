package worker

import (
	"context"

	"github.com/undercity/undercity/pkg/models"
)

// dispatchMeta handles a `[meta:...]` task:
// these are housekeeping prompts (e.g. summarizing research, updating
// documentation) that are judged complete by the LLM's own narrative
// rather than by the verification harness.
func (w *Worker) dispatchMeta(ctx context.Context, st *state, transcript string) attemptOutcome {
	verdict, err := w.verify(ctx, st)
	if err != nil || verdict == nil {
		verdict = &models.Verdict{Passed: true}
	}
	return attemptOutcome{verdict: verdict}
}

// dispatchResearch handles a `[research]` task: the expected artifact is
// a markdown note under research/, not a passing build. Verification
// still runs (a research task must not leave the tree broken) but a
// zero-file-changed research note is a failure, not an already-complete
// signal, since research tasks are expected to write something.
func (w *Worker) dispatchResearch(ctx context.Context, st *state) attemptOutcome {
	verdict, err := w.verify(ctx, st)
	if err != nil {
		return attemptOutcome{verdict: &models.Verdict{Passed: false, Feedback: err.Error()}}
	}
	return attemptOutcome{verdict: verdict}
}

// dispatchImplementation is the common case: run the verification
// harness and hand its verdict and any parsed sentinel back to the
// executor loop's decision step.
func (w *Worker) dispatchImplementation(ctx context.Context, st *state, sentinel *Sentinel) attemptOutcome {
	verdict, err := w.verify(ctx, st)
	if err != nil {
		return attemptOutcome{verdict: &models.Verdict{Passed: false, Feedback: err.Error()}, sentinel: sentinel}
	}
	categories := []models.IssueCategory{}
	if verdict != nil {
		for cat := range verdict.Categories() {
			categories = append(categories, cat)
		}
	}
	return attemptOutcome{verdict: verdict, sentinel: sentinel, errorCategories: categories}
}

// onVerificationPassed runs the review phase if enabled, then commits.
func (w *Worker) onVerificationPassed(ctx context.Context, st *state, verdict *models.Verdict) *models.TaskResult {
	var unresolved []string
	if w.Limits.EnableReview {
		w.checkpoint(st, models.PhaseReviewing, lastVerificationFrom(verdict))
		verdict, unresolved = w.review(ctx, st, verdict)
	}

	w.checkpoint(st, models.PhaseCommitting, lastVerificationFrom(verdict))
	sha, err := w.commit(ctx, st)
	if err != nil {
		return failed(models.ErrTagVerificationFailed, "commit failed: "+err.Error())
	}
	result := complete(verdict, sha)
	result.UnresolvedTickets = unresolved
	return result
}
