package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/models"
)

func TestLoadAppliesDefaultsWhenNoYAMLPresent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultStateDir, cfg.StateDir())
	assert.Equal(t, DefaultWorkerLimits(), cfg.Limits)
	assert.Equal(t, models.TierCheap, cfg.StartTier)
}

func TestLoadMergesYAMLOverBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
state_dir: custom-state
start_tier: strong
limits:
  max_attempts: 3
  max_retries_per_tier: 1
verify:
  typecheck:
    command: ["go", "vet", "./..."]
    critical: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "undercity.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "custom-state", cfg.StateDir())
	assert.Equal(t, models.TierStrong, cfg.StartTier)
	assert.Equal(t, 3, cfg.Limits.MaxAttempts)
	assert.Equal(t, 1, cfg.Limits.MaxRetriesPerTier)
	assert.Equal(t, []string{"go", "vet", "./..."}, cfg.Verify.Typecheck.Command)
	assert.True(t, cfg.Verify.Typecheck.Critical)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UNDERCITY_LISTEN_ADDR", ":9090")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "undercity.yaml"), []byte("listen_addr: ${UNDERCITY_LISTEN_ADDR}\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "undercity.yaml"), []byte("limits:\n  max_attempts: -1\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestCLIOptionsApplyOverrides(t *testing.T) {
	cfg := defaultConfig(DefaultStateDir)
	opts := CLIOptions{MaxAttempts: 2, StartingModel: models.TierMid, ReviewPasses: false}

	opts.ApplyOverrides(cfg)

	assert.Equal(t, 2, cfg.Limits.MaxAttempts)
	assert.Equal(t, models.TierMid, cfg.StartTier)
	assert.False(t, cfg.Limits.EnableReview)
}

func TestWorkerLimitsConvertsTierNames(t *testing.T) {
	l := WorkerLimits{MaxTier: "mid", MaxReviewTier: "strong"}
	wl := l.ToWorkerLimits()

	assert.Equal(t, models.TierMid, wl.MaxTier)
	assert.Equal(t, models.TierStrong, wl.MaxReviewTier)
}
