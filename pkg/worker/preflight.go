package worker

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/models"
)

// pathPattern matches things that look like full file paths in free
// text: a run of path segments containing at least one '/' or a file
// extension, used by the pre-flight INVALID_TARGET check.
var pathPattern = regexp.MustCompile(`\b[\w./-]+/[\w./-]+\.\w{1,8}\b`)

// preflightValidate fails immediately without ever invoking the LLM
// if the objective names full paths that do not exist and this is not
// a "create" task.
func (w *Worker) preflightValidate(st *state) *models.TaskResult {
	if learning.IsCreateObjective(st.task.Objective) {
		return nil
	}
	for _, match := range pathPattern.FindAllString(st.task.Objective, -1) {
		candidate := filepath.Join(st.task.WorkingDirectory, match)
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return failed(models.ErrTagInvalidTarget, "objective references a path that does not exist: "+match)
			}
		}
	}
	return nil
}

// mechanicalPatterns are the fixed pattern set eligible for the fast
// path: tasks narrow enough that a structural transform
// can attempt them without an LLM call.
var mechanicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^fix (the )?typo`),
	regexp.MustCompile(`(?i)^rename \S+ to \S+`),
}

// StructuralTransform is a mechanical, non-LLM code transformation the
// fast path may attempt. Implementations are registered
// per objective shape; Undercity ships none built in: this is a narrow
// pluggable extension point, mirroring the error store's patch-template
// design.
type StructuralTransform func(ctx context.Context, workingDir, objective string) (applied bool, err error)

var registeredTransforms []StructuralTransform

// RegisterStructuralTransform installs a fast-path transform attempted
// before any LLM call for matching objectives.
func RegisterStructuralTransform(t StructuralTransform) {
	registeredTransforms = append(registeredTransforms, t)
}

// tryFastPath attempts a structural transform for mechanical tasks;
// if it succeeds and verifies, commit without ever invoking the LLM.
// Otherwise revert all working-tree changes.
func (w *Worker) tryFastPath(ctx context.Context, st *state) *models.TaskResult {
	if !isMechanical(st.task.Objective) || len(registeredTransforms) == 0 {
		return nil
	}

	for _, transform := range registeredTransforms {
		applied, err := transform(ctx, st.task.WorkingDirectory, st.task.Objective)
		if err != nil || !applied {
			w.revertWorkingTree(ctx)
			continue
		}

		verdict, vErr := w.verify(ctx, st)
		if vErr != nil || !verdict.Passed {
			w.revertWorkingTree(ctx)
			continue
		}

		sha, err := w.commit(ctx, st)
		if err != nil {
			w.revertWorkingTree(ctx)
			continue
		}
		w.Logger.Info("worker: fast path succeeded, no LLM call made", "task", st.task.ID)
		return complete(verdict, sha)
	}
	return nil
}

func isMechanical(objective string) bool {
	trimmed := strings.TrimSpace(objective)
	for _, p := range mechanicalPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// revertWorkingTree discards every working-tree change: tracked
// modifications and untracked files alike.
func (w *Worker) revertWorkingTree(ctx context.Context) {
	if err := w.repo.ResetHard(ctx, "HEAD"); err != nil {
		w.Logger.Warn("worker: reset --hard failed during revert", "error", err)
	}
	untracked, err := w.repo.UntrackedFiles(ctx)
	if err != nil {
		return
	}
	for _, f := range untracked {
		_ = os.Remove(filepath.Join(w.repo.Dir, f))
	}
}
