// Package router implements the Task Router: given an
// objective, it picks a starting model tier and review policy by
// combining keyword heuristics, quantitative complexity scoring, and the
// two adaptive learning stores (routing profile, capability ledger).
package router

import (
	"log/slog"

	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/models"
)

// ReviewPolicy is the escalating-review configuration the worker
// consults.
type ReviewPolicy struct {
	Enable       bool
	Annealing    bool
	MaxReviewTier models.Tier
}

// Decision is the router's output.
type Decision struct {
	StartingTier models.Tier
	ReviewPolicy ReviewPolicy
	CapAtTier    models.Tier
	Complexity   models.Complexity
	Reason       string
}

// Router holds the learning-store handles it consults. Either may be nil,
// in which case the router degrades to hard-coded defaults.
type Router struct {
	Ledger  *learning.Ledger
	Profile *learning.Profile
	Logger  *slog.Logger
}

func New(ledger *learning.Ledger, profile *learning.Profile, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{Ledger: ledger, Profile: profile, Logger: logger}
}

// Route runs the full tier-selection algorithm. metrics is optional
// (nil means "target files unknown", step 1 falls back to the
// keyword rule). maxTier is the user-supplied cap; pass models.TierStrong
// (the highest tier) for "no cap".
func (r *Router) Route(objective string, metrics *models.FileMetrics, maxTier models.Tier) Decision {
	complexity := ScoreComplexity(objective, metrics)

	tier := defaultTierForComplexity(complexity)
	reason := "default tier for complexity " + complexity.String()

	if learning.IsTestWritingObjective(objective) && tier < models.TierMid {
		tier = models.TierMid
		reason = "test-writing override: minimum mid tier"
	}

	if r.Profile != nil {
		for {
			th := r.Profile.Threshold(tier, complexity)
			observed := r.Profile.ModelSuccessRate(tier)
			belowThreshold := th.MinSamples > 0 && observed > 0 && observed < th.MinSuccessRate
			if !th.Skip && !belowThreshold {
				break
			}
			next, ok := tier.Next()
			if !ok {
				break
			}
			r.Logger.Info("router: escalating tier from routing profile", "from", tier, "to", next, "skip", th.Skip)
			tier = next
			reason = "routing profile escalation"
		}
	}

	if tier > maxTier {
		r.Logger.Info("router: capping tier", "wanted", tier, "cap", maxTier)
		tier = maxTier
		reason = "capped by maxTier"
	}

	if r.Ledger != nil {
		if rec, ok := r.Ledger.Recommend(objective); ok && rec.Tier <= maxTier {
			tier = rec.Tier
			reason = rec.Reason
		}
	}

	policy := reviewPolicyForComplexity(complexity, maxTier)

	return Decision{
		StartingTier: tier,
		ReviewPolicy: policy,
		CapAtTier:    maxTier,
		Complexity:   complexity,
		Reason:       reason,
	}
}

// defaultTierForComplexity maps complexity to a starting tier: trivial/simple -> cheap, standard/complex -> mid, critical -> strong.
func defaultTierForComplexity(c models.Complexity) models.Tier {
	switch c {
	case models.ComplexityTrivial, models.ComplexitySimple:
		return models.TierCheap
	case models.ComplexityStandard, models.ComplexityComplex:
		return models.TierMid
	default:
		return models.TierStrong
	}
}

// reviewPolicyForComplexity determines the review policy:
// trivial through complex cap review at mid; critical reviews at strong
// with annealing, when the cap allows reaching strong at all.
func reviewPolicyForComplexity(c models.Complexity, maxTier models.Tier) ReviewPolicy {
	if c == models.ComplexityCritical {
		ceiling := models.TierStrong
		if ceiling > maxTier {
			ceiling = maxTier
		}
		return ReviewPolicy{
			Enable:        true,
			Annealing:     ceiling == models.TierStrong,
			MaxReviewTier: ceiling,
		}
	}
	ceiling := models.TierMid
	if ceiling > maxTier {
		ceiling = maxTier
	}
	return ReviewPolicy{Enable: true, Annealing: false, MaxReviewTier: ceiling}
}
