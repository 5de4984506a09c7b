package gitexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "master")
	run("config", "user.email", "bot@example.com")
	run("config", "user.name", "bot")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", "-A")
	run("commit", "-q", "-m", "initial")
	return New(dir)
}

func TestStatusCleanAfterCommit(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	clean, porcelain, err := r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, clean)
	assert.Empty(t, porcelain)
}

func TestAddCommitThenStatusDirty(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "b.txt"), []byte("two\n"), 0o644))
	clean, porcelain, err := r.Status(ctx)
	require.NoError(t, err)
	assert.False(t, clean)
	assert.Contains(t, porcelain, "b.txt")

	require.NoError(t, r.AddAll(ctx))
	require.NoError(t, r.Commit(ctx, "add b"))

	clean, _, err = r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, clean)
}

func TestCheckoutNewBranchAndCurrentBranch(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CheckoutNewBranch(ctx, "feature/x"))
	branch, err := r.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", branch)
}

func TestRebaseAbortIsNoopWithoutInProgressRebase(t *testing.T) {
	r := initRepo(t)
	// Must not error out even though no rebase is in progress: this is the
	// stale-state cleanup call made unconditionally before every rebase.
	err := r.RebaseAbort(context.Background())
	assert.NoError(t, err)
}

func TestMergeConflictDetectedAndResetHardRecovers(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CheckoutNewBranch(ctx, "feature"))
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "a.txt"), []byte("feature change\n"), 0o644))
	require.NoError(t, r.AddAll(ctx))
	require.NoError(t, r.Commit(ctx, "feature edit"))

	require.NoError(t, r.Checkout(ctx, "master"))
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "a.txt"), []byte("master change\n"), 0o644))
	require.NoError(t, r.AddAll(ctx))
	require.NoError(t, r.Commit(ctx, "master edit"))

	res, mergeErr := r.Merge(ctx, "feature", MergePlain, "merge feature")
	if mergeErr != nil {
		assert.True(t, IsConflict(res), "expected a content conflict, got: %s", res.Output)
		require.NoError(t, r.MergeAbort(ctx))
	}

	clean, _, err := r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, clean)
}

func TestUntrackedFilesListsNewFilesOnly(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "c.txt"), []byte("c\n"), 0o644))
	files, err := r.UntrackedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt"}, files)
}

func TestWorktreeListIncludesMainWorktree(t *testing.T) {
	r := initRepo(t)
	list, err := r.WorktreeList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.Dir, list[0].Path)
}

func TestLogOnelineReturnsRequestedCount(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "d.txt"), []byte("d\n"), 0o644))
	require.NoError(t, r.AddAll(ctx))
	require.NoError(t, r.Commit(ctx, "second commit"))

	lines, err := r.LogOneline(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "second commit")
}
