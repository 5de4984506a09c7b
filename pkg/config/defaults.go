package config

import (
	"time"

	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/verify"
)

// DefaultStateDir is used when neither a CLI flag nor config file names
// one.
const DefaultStateDir = ".undercity"

// DefaultWorkerLimits returns the baseline attempt/retry/review budgets.
// These mirror pkg/worker.Limits.WithDefaults so a zero-value YAML section
// and a zero-value Go struct agree.
func DefaultWorkerLimits() WorkerLimits {
	return WorkerLimits{
		MaxAttempts:            7,
		MaxRetriesPerTier:      3,
		MaxStrongRetries:       7,
		MaxReviewPassesPerTier: 2,
		MaxStrongReviewPasses:  6,
		MaxWritesPerFile:       6,
		EnablePlanning:         true,
		EnableReview:           true,
		Annealing:              true,
		MaxReviewTier:          "strong",
		MaxTier:                "strong",
		AutoCommit:             true,
	}
}

func DefaultElevatorConfig() ElevatorConfig {
	return ElevatorConfig{
		MaxRetries:  5,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  2 * time.Minute,
		PushOnMerge: true,
	}
}

func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
		Cooldown: 30 * time.Minute,
	}
}

func DefaultPlaybookConfig() PlaybookConfig {
	return PlaybookConfig{
		CacheTTL: 24 * time.Hour,
	}
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		FailedTaskAge: 30 * 24 * time.Hour,
		CheckpointAge: 7 * 24 * time.Hour,
		ResearchAge:   90 * 24 * time.Hour,
		Interval:      time.Hour,
	}
}

func DefaultMaskingConfig() MaskingConfig {
	return MaskingConfig{Enabled: true, PatternGroup: "secrets"}
}

// defaultConfig is the fully-populated Config used before any YAML is
// merged on top of it (loader.go's "built-in overridden by user"
// pattern).
func defaultConfig(stateDir string) *Config {
	return &Config{
		stateDir:   stateDir,
		Limits:     DefaultWorkerLimits(),
		Verify:     verify.Registry{},
		Elevator:   DefaultElevatorConfig(),
		Notify:     DefaultNotifyConfig(),
		Playbook:   DefaultPlaybookConfig(),
		Retention:  DefaultRetentionConfig(),
		Masking:    DefaultMaskingConfig(),
		StartTier:  models.TierCheap,
		ListenAddr: ":8080",
	}
}
