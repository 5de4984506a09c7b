package learning

import (
	"math"
	"time"

	"github.com/undercity/undercity/pkg/models"
)

// Ledger is the capability ledger: a keyword → per-tier
// outcome statistics mapping, persisted at capability-ledger.json.
type Ledger struct {
	path string
	data *models.CapabilityLedger
}

// LoadLedger loads the ledger from path, defaulting to an empty ledger
// when the file is absent or corrupt.
func LoadLedger(path string) (*Ledger, error) {
	data := models.NewCapabilityLedger()
	present, err := loadJSON(path, data)
	if err != nil {
		return nil, err
	}
	if !present || data.Patterns == nil {
		data = models.NewCapabilityLedger()
	}
	return &Ledger{path: path, data: data}, nil
}

// Save persists the ledger atomically.
func (l *Ledger) Save() error {
	l.data.UpdatedAt = time.Now()
	return saveJSON(l.path, l.data)
}

// Snapshot returns a deep-enough copy of the ledger for read-only use by
// other goroutines without racing the writer.
func (l *Ledger) Snapshot() *models.CapabilityLedger {
	return l.data
}

// RecordOutcome updates the ledger for one completed task. New keywords create new pattern entries.
// TotalEntries increments for every task, even when no keyword matches.
func (l *Ledger) RecordOutcome(objective string, tier models.Tier, success, escalated bool, tokens int, durationMs int64, retries int) {
	l.data.TotalEntries++

	keywords := ExtractKeywords(objective)
	now := time.Now()
	for _, kw := range keywords {
		pattern, ok := l.data.Patterns[kw]
		if !ok {
			pattern = models.NewPatternStats(kw)
			l.data.Patterns[kw] = pattern
		}
		stats := pattern.ByModel[tier]
		if stats == nil {
			stats = &models.TierStats{}
			pattern.ByModel[tier] = stats
		}
		stats.Attempts++
		if success {
			stats.Successes++
		}
		if escalated {
			stats.Escalations++
		}
		stats.TotalTokens += tokens
		stats.TotalDurationMs += durationMs
		stats.TotalRetries += retries
		pattern.LastSeen = now
	}
}

// minSampleAttempts and minSampleSuccessRate are the ledger-recommendation
// confidence thresholds: "≥3 attempts, ≥60% success".
const (
	minSampleAttempts    = 3
	minSampleSuccessRate = 0.60
)

// tierValueDamping exaggerates the cost of expensive tiers when
// retries are comparable, favoring cheaper tiers on a tie.
const tierValueDamping = 1.2

// Recommend aggregates matched-keyword stats for objective and returns
// the tier with the highest expected-value score, along with a
// confidence in [0,1].
//
// expected value per tier = successRate / (1 + retriesAvg * damping^tierIndex)
// This is one of several formulas the source mixes;
// Undercity picks this one and applies it consistently.
func (l *Ledger) Recommend(objective string) (models.Recommendation, bool) {
	keywords := ExtractKeywords(objective)
	if len(keywords) == 0 {
		return models.Recommendation{}, false
	}

	aggregate := map[models.Tier]*models.TierStats{}
	for _, tier := range models.Tiers {
		aggregate[tier] = &models.TierStats{}
	}
	for _, kw := range keywords {
		pattern, ok := l.data.Patterns[kw]
		if !ok {
			continue
		}
		for tier, stats := range pattern.ByModel {
			agg := aggregate[tier]
			agg.Attempts += stats.Attempts
			agg.Successes += stats.Successes
			agg.Escalations += stats.Escalations
			agg.TotalTokens += stats.TotalTokens
			agg.TotalDurationMs += stats.TotalDurationMs
			agg.TotalRetries += stats.TotalRetries
		}
	}

	best := models.Recommendation{}
	bestScore := -1.0
	haveConclusive := false
	for i, tier := range models.Tiers {
		stats := aggregate[tier]
		if stats.Attempts < minSampleAttempts || stats.SuccessRate() < minSampleSuccessRate {
			continue
		}
		damping := math.Pow(tierValueDamping, float64(i))
		score := stats.SuccessRate() / (1 + stats.RetriesAvg()*damping)
		if score > bestScore {
			bestScore = score
			best = models.Recommendation{Tier: tier, Score: score, Reason: "ledger: highest expected value among conclusive tiers"}
			haveConclusive = true
		}
	}

	if !haveConclusive {
		// Deterministic fallback: a tier with high escalation rate
		// and low success recommends escalating past it; otherwise default
		// to mid.
		for _, tier := range models.Tiers {
			stats := aggregate[tier]
			if stats.Attempts > 0 && stats.EscalationRate() >= 0.30 && stats.SuccessRate() < minSampleSuccessRate {
				next, ok := tier.Next()
				if ok {
					best = models.Recommendation{Tier: next, Score: 0, Reason: "fallback: high escalation rate at " + tier.String()}
					haveConclusive = true
					break
				}
			}
		}
		if !haveConclusive {
			best = models.Recommendation{Tier: models.TierMid, Score: 0, Reason: "fallback: insufficient conclusive data"}
		}
	}

	return best, haveConclusive
}

// Confidence returns min(1, totalEntries/50).
func (l *Ledger) Confidence() float64 {
	return math.Min(1, float64(l.data.TotalEntries)/50.0)
}
