package verify

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/models"
)

func initRepoWithChange(t *testing.T) string {
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

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("two\n"), 0o644))
	run("add", "-A")
	return dir
}

func TestHarnessAllPassingChecksYieldsPassedVerdict(t *testing.T) {
	dir := initRepoWithChange(t)
	h := New(Registry{
		Typecheck: Tool{Name: "typecheck", Command: []string{"true"}, Critical: true},
		Test:      Tool{Name: "test", Command: []string{"true"}, Critical: true},
	}, nil)

	v, err := h.Run(context.Background(), models.VerificationOptions{
		RunTypecheck:     true,
		RunTests:         true,
		WorkingDirectory: dir,
	})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.False(t, v.HasWarnings)
	assert.Greater(t, v.FilesChanged, 0)
}

func TestHarnessCriticalFailureFailsVerdict(t *testing.T) {
	dir := initRepoWithChange(t)
	h := New(Registry{
		Typecheck: Tool{Name: "typecheck", Command: []string{"sh", "-c", "echo 'undefined: Foo' >&2; exit 1"}, Critical: true},
	}, nil)

	v, err := h.Run(context.Background(), models.VerificationOptions{
		RunTypecheck:     true,
		WorkingDirectory: dir,
	})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	require.NotEmpty(t, v.Issues)
	assert.Equal(t, models.CategoryTypecheck, v.Issues[0].Category)
}

func TestHarnessOptionalFailureSetsWarningsNotFailure(t *testing.T) {
	dir := initRepoWithChange(t)
	h := New(Registry{
		Typecheck: Tool{Name: "typecheck", Command: []string{"true"}, Critical: true},
		Spell:     Tool{Name: "spell", Command: []string{"false"}, Critical: false},
	}, nil)

	v, err := h.Run(context.Background(), models.VerificationOptions{
		RunTypecheck:     true,
		RunSpell:         true,
		WorkingDirectory: dir,
	})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.True(t, v.HasWarnings)
}

func TestHarnessSkipOptionalChecksSuppressesSpellAndSecurity(t *testing.T) {
	dir := initRepoWithChange(t)
	h := New(Registry{
		Spell: Tool{Name: "spell", Command: []string{"false"}, Critical: false},
	}, nil)

	v, err := h.Run(context.Background(), models.VerificationOptions{
		RunSpell:           true,
		SkipOptionalChecks: true,
		WorkingDirectory:   dir,
	})
	require.NoError(t, err)
	assert.False(t, v.HasWarnings)
}

func TestHarnessNoChangesYieldsNoChangesIssue(t *testing.T) {
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

	h := New(Registry{}, nil)
	v, err := h.Run(context.Background(), models.VerificationOptions{WorkingDirectory: dir})
	require.NoError(t, err)
	assert.Equal(t, 0, v.FilesChanged)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, models.CategoryNoChanges, v.Issues[0].Category)
}

func TestHarnessMissingWorkingDirectoryErrors(t *testing.T) {
	h := New(Registry{}, nil)
	_, err := h.Run(context.Background(), models.VerificationOptions{})
	assert.Error(t, err)
}
