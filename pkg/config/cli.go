package config

import "github.com/undercity/undercity/pkg/models"

// CLIOptions is the option set accepted by the worker-facing CLI:
// maxAttempts, startingModel, autoCommit, stream, branch, runTypecheck,
// runTests, workingDirectory, reviewPasses, maxReviewPassesPerTier,
// maxOpusReviewPasses, annealingAtOpus, maxRetriesPerTier, maxOpusRetries,
// enablePlanning, skipOptionalVerification, and maxTier. "Opus" in these
// field names is this system's TierStrong, kept as the option name for
// continuity with the option list's wording.
type CLIOptions struct {
	Objective                string
	WorkingDirectory         string
	MaxAttempts              int
	StartingModel            models.Tier
	AutoCommit               bool
	Stream                   bool
	Branch                   string
	RunTypecheck             bool
	RunTests                 bool
	ReviewPasses             bool
	MaxReviewPassesPerTier   int
	MaxOpusReviewPasses      int
	AnnealingAtOpus          bool
	MaxRetriesPerTier        int
	MaxOpusRetries           int
	EnablePlanning           bool
	SkipOptionalVerification bool
	MaxTier                  models.Tier
}

// ApplyOverrides folds non-zero CLI options onto the file/env-loaded
// config's worker limits, giving flags the final word: the same
// "built-in < file < flags" precedence the loader already establishes
// for defaults vs. undercity.yaml.
func (o CLIOptions) ApplyOverrides(cfg *Config) {
	if o.MaxAttempts > 0 {
		cfg.Limits.MaxAttempts = o.MaxAttempts
	}
	if o.MaxRetriesPerTier > 0 {
		cfg.Limits.MaxRetriesPerTier = o.MaxRetriesPerTier
	}
	if o.MaxOpusRetries > 0 {
		cfg.Limits.MaxStrongRetries = o.MaxOpusRetries
	}
	if o.MaxReviewPassesPerTier > 0 {
		cfg.Limits.MaxReviewPassesPerTier = o.MaxReviewPassesPerTier
	}
	if o.MaxOpusReviewPasses > 0 {
		cfg.Limits.MaxStrongReviewPasses = o.MaxOpusReviewPasses
	}
	if o.MaxTier != 0 {
		cfg.Limits.MaxTier = o.MaxTier.String()
	}
	cfg.Limits.EnablePlanning = o.EnablePlanning
	cfg.Limits.EnableReview = o.ReviewPasses
	cfg.Limits.Annealing = o.AnnealingAtOpus
	cfg.Limits.AutoCommit = o.AutoCommit
	if o.StartingModel != 0 {
		cfg.StartTier = o.StartingModel
	}
}
