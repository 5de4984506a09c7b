package worker

import (
	"context"
	"fmt"
	"strings"
)

// commit stages every tracked modification and every
// untracked-but-not-ignored file, then commits. If the working tree is
// already clean (the fast path's structural transform made no net
// change, for instance) the current HEAD is reused rather than creating
// an empty commit.
func (w *Worker) commit(ctx context.Context, st *state) (string, error) {
	if err := w.repo.AddUpdated(ctx); err != nil {
		return "", fmt.Errorf("worker: git add -u failed: %w", err)
	}
	untracked, err := w.repo.UntrackedFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("worker: listing untracked files failed: %w", err)
	}
	for _, f := range untracked {
		if err := w.repo.AddPath(ctx, f); err != nil {
			return "", fmt.Errorf("worker: git add %s failed: %w", f, err)
		}
	}

	hasChanges, err := w.repo.HasChangesToCommit(ctx)
	if err != nil {
		return "", err
	}
	if !hasChanges {
		sha, err := w.repo.RevParse(ctx, "HEAD")
		if err != nil {
			return "", err
		}
		return sha, nil
	}

	if err := w.repo.Commit(ctx, commitMessage(st)); err != nil {
		return "", fmt.Errorf("worker: commit failed: %w", err)
	}
	return w.repo.RevParse(ctx, "HEAD")
}

func commitMessage(st *state) string {
	objective := strings.TrimSpace(st.task.Objective)
	if len(objective) > 72 {
		objective = objective[:69] + "..."
	}
	return objective
}

// filesTouchedSince diffs the current working tree against the commit
// that was HEAD when the task started, used by the completion-path
// learning updates.
func filesTouchedSince(ctx context.Context, w *Worker, base string) []string {
	files, err := w.repo.DiffNameOnly(ctx, base)
	if err != nil {
		return nil
	}
	return files
}
