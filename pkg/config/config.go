// Package config loads and validates Undercity's configuration: tier
// definitions, escalation/review thresholds, the verification tool
// registry, and the persisted-state directory layout. Configuration
// flows through the usual YAML-plus-env-expansion-plus-defaults-plus-
// validator pipeline, with the tool/tier registries as the
// domain-specific part.
package config

import (
	"time"

	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/verify"
	"github.com/undercity/undercity/pkg/worker"
)

// Config is the umbrella object returned by Load and threaded through
// the CLI entrypoint into the router, worker, elevator, and API server.
type Config struct {
	stateDir string

	Limits     WorkerLimits
	Verify     verify.Registry
	Elevator   ElevatorConfig
	Notify     NotifyConfig
	Playbook   PlaybookConfig
	Retention  RetentionConfig
	Masking    MaskingConfig
	StartTier  models.Tier
	ListenAddr string
}

// WorkerLimits mirrors pkg/worker.Limits but is the YAML-facing,
// string/duration-typed shape; LoadWorkerLimits converts it.
type WorkerLimits struct {
	MaxAttempts            int  `yaml:"max_attempts"`
	MaxRetriesPerTier      int  `yaml:"max_retries_per_tier"`
	MaxStrongRetries       int  `yaml:"max_strong_retries"`
	MaxReviewPassesPerTier int  `yaml:"max_review_passes_per_tier"`
	MaxStrongReviewPasses  int  `yaml:"max_strong_review_passes"`
	MaxWritesPerFile       int  `yaml:"max_writes_per_file"`
	EnablePlanning         bool `yaml:"enable_planning"`
	EnableReview           bool `yaml:"enable_review"`
	Annealing              bool `yaml:"annealing"`
	MaxReviewTier          string `yaml:"max_review_tier"`
	MaxTier                string `yaml:"max_tier"`
	AutoCommit             bool `yaml:"auto_commit"`
}

// ElevatorConfig configures the Merge Elevator.
type ElevatorConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PushOnMerge    bool          `yaml:"push_on_merge"`
}

// NotifyConfig configures the optional Slack notifier (pkg/notify).
type NotifyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	TokenEnv string        `yaml:"token_env"`
	Channel  string        `yaml:"channel"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// PlaybookConfig configures the optional doc-URL fetcher (pkg/playbook).
type PlaybookConfig struct {
	AllowedDomains []string      `yaml:"allowed_domains"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// RetentionConfig configures pkg/cleanup's periodic pruning.
type RetentionConfig struct {
	FailedTaskAge time.Duration `yaml:"failed_task_age"`
	CheckpointAge time.Duration `yaml:"checkpoint_age"`
	ResearchAge   time.Duration `yaml:"research_age"`
	Interval      time.Duration `yaml:"interval"`
}

// MaskingConfig toggles the secret masker (pkg/masking).
type MaskingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PatternGroup string `yaml:"pattern_group"`
}

// StateDir returns the state directory every component persists under.
func (c *Config) StateDir() string {
	return c.stateDir
}

// ToWorkerLimits converts the YAML-facing WorkerLimits into the
// pkg/worker.Limits the state machine actually consumes, resolving the
// tier-name strings into models.Tier values.
func (l WorkerLimits) ToWorkerLimits() worker.Limits {
	return worker.Limits{
		MaxAttempts:            l.MaxAttempts,
		MaxRetriesPerTier:      l.MaxRetriesPerTier,
		MaxStrongRetries:       l.MaxStrongRetries,
		MaxReviewPassesPerTier: l.MaxReviewPassesPerTier,
		MaxStrongReviewPasses:  l.MaxStrongReviewPasses,
		MaxWritesPerFile:       l.MaxWritesPerFile,
		EnablePlanning:         l.EnablePlanning,
		EnableReview:           l.EnableReview,
		Annealing:              l.Annealing,
		MaxReviewTier:          models.ParseTier(l.MaxReviewTier),
		MaxTier:                models.ParseTier(l.MaxTier),
		AutoCommit:             l.AutoCommit,
	}.WithDefaults()
}
