package worker

import (
	"context"

	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/models"
)

// permanentFailureInputFrom builds the error store's terminal-failure
// record from the task's final state.
func permanentFailureInputFrom(st *state, category models.IssueCategory, message string) learning.PermanentFailureInput {
	return learning.PermanentFailureInput{
		Category:      category,
		Message:       message,
		TaskObjective: st.task.Objective,
		FinalTier:     st.tier,
		AttemptCount:  len(st.attemptRecords),
		FilesModified: st.filesBefore,
	}
}

// recordCompletion updates the capability ledger on every task
// completion, success or failure; only a success extends the
// error-pattern, knowledge, and co-mod stores, and only a failure
// records a permanent error pattern and
// cleans the working tree.
func (w *Worker) recordCompletion(ctx context.Context, st *state, result *models.TaskResult) {
	success := result.Status == models.StatusComplete
	escalated := st.tier != st.task.StartingTier

	if w.Stores.Ledger != nil {
		w.Stores.Ledger.RecordOutcome(st.task.Objective, st.tier, success, escalated, st.tokenUsage.Total, result.DurationMs, len(st.attemptRecords))
		if err := w.Stores.Ledger.Save(); err != nil {
			w.Logger.Warn("worker: ledger save failed", "task", st.task.ID, "error", err)
		}
	}

	if success {
		w.recordSuccess(ctx, st, result)
	} else {
		w.recordFailure(ctx, st)
	}
}

func (w *Worker) recordSuccess(ctx context.Context, st *state, result *models.TaskResult) {
	var filesChanged []string
	if result.CommitSha != "" {
		filesChanged = filesTouchedSince(ctx, w, "HEAD~1")
	}

	if w.Stores.Errors != nil && st.pendingSignature != "" {
		w.Stores.Errors.RecordSuccessfulFix(st.task.ID, filesChanged)
		if err := w.Stores.Errors.Save(); err != nil {
			w.Logger.Warn("worker: error store save failed", "task", st.task.ID, "error", err)
		}
	}

	if w.Stores.Knowledge != nil {
		for _, e := range st.injectedIDs {
			w.Stores.Knowledge.MarkUsed(e, true)
		}
		if err := w.Stores.Knowledge.Save(); err != nil {
			w.Logger.Warn("worker: knowledge store save failed", "task", st.task.ID, "error", err)
		}
	}

	if w.Stores.CoMod != nil && len(filesChanged) > 1 {
		w.Stores.CoMod.RecordCommit(filesChanged)
		if err := w.Stores.CoMod.Save(); err != nil {
			w.Logger.Warn("worker: co-mod index save failed", "task", st.task.ID, "error", err)
		}
	}
}

func (w *Worker) recordFailure(ctx context.Context, st *state) {
	if w.Stores.Errors != nil {
		category, message := primaryIssue(st.lastVerdict)
		w.Stores.Errors.RecordPermanentFailure(permanentFailureInputFrom(st, category, message))
		if err := w.Stores.Errors.Save(); err != nil {
			w.Logger.Warn("worker: error store save failed", "task", st.task.ID, "error", err)
		}
	}

	if w.Stores.Knowledge != nil {
		for _, e := range st.injectedIDs {
			w.Stores.Knowledge.MarkUsed(e, false)
		}
		if err := w.Stores.Knowledge.Save(); err != nil {
			w.Logger.Warn("worker: knowledge store save failed", "task", st.task.ID, "error", err)
		}
	}

	w.revertWorkingTree(ctx)
}
