package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/config"
)

func touchWithAge(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now().Add(-age), time.Now().Add(-age)))
}

func TestRunOncePrunesOldFailedTasks(t *testing.T) {
	dir := t.TempDir()
	failedDir := filepath.Join(dir, "failed-tasks")
	require.NoError(t, os.MkdirAll(failedDir, 0o755))

	old := filepath.Join(failedDir, "old-task.json")
	fresh := filepath.Join(failedDir, "fresh-task.json")
	touchWithAge(t, old, 48*time.Hour)
	touchWithAge(t, fresh, time.Minute)

	s := NewService(dir, config.RetentionConfig{FailedTaskAge: 24 * time.Hour}, nil)
	s.RunOnce()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestRunOnceRemovesStaleCheckpointDirs(t *testing.T) {
	dir := t.TempDir()
	taskDir := filepath.Join(dir, "task-1")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	cp := filepath.Join(taskDir, "checkpoint.json")
	touchWithAge(t, cp, 10*24*time.Hour)

	s := NewService(dir, config.RetentionConfig{CheckpointAge: 24 * time.Hour}, nil)
	s.RunOnce()

	_, err := os.Stat(taskDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunOnceIsNoOpWhenAgesAreZero(t *testing.T) {
	dir := t.TempDir()
	failedDir := filepath.Join(dir, "failed-tasks")
	require.NoError(t, os.MkdirAll(failedDir, 0o755))
	old := filepath.Join(failedDir, "old-task.json")
	touchWithAge(t, old, 365*24*time.Hour)

	s := NewService(dir, config.RetentionConfig{}, nil)
	s.RunOnce()

	_, err := os.Stat(old)
	assert.NoError(t, err, "zero-value ages must disable pruning, not prune everything")
}

func TestStartAndStop(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir, config.RetentionConfig{Interval: time.Hour}, nil)
	s.Start(context.Background())
	s.Stop()
}
