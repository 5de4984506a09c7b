package models

import "time"

// TierStats accumulates outcomes for one keyword pattern at one tier
//. Invariant I1: Successes <= Attempts and
// Escalations <= Attempts, and every counter is non-negative.
type TierStats struct {
	Attempts        int   `json:"attempts"`
	Successes       int   `json:"successes"`
	Escalations     int   `json:"escalations"`
	TotalTokens     int   `json:"totalTokens"`
	TotalDurationMs int64 `json:"totalDurationMs"`
	TotalRetries    int   `json:"totalRetries"`
}

// SuccessRate returns Successes/Attempts, or 0 when there is no data.
func (s TierStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// EscalationRate returns Escalations/Attempts, or 0 when there is no data.
func (s TierStats) EscalationRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Escalations) / float64(s.Attempts)
}

// RetriesAvg returns TotalRetries/Attempts, or 0 when there is no data.
func (s TierStats) RetriesAvg() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.TotalRetries) / float64(s.Attempts)
}

// PatternStats holds per-tier outcome statistics for one action keyword.
type PatternStats struct {
	Pattern  string           `json:"pattern"`
	ByModel  map[Tier]*TierStats `json:"byModel"`
	LastSeen time.Time        `json:"lastSeen"`
}

// NewPatternStats creates a pattern entry with every known tier present,
// as required by the Capability ledger invariants.
func NewPatternStats(pattern string) *PatternStats {
	byModel := make(map[Tier]*TierStats, len(Tiers))
	for _, t := range Tiers {
		byModel[t] = &TierStats{}
	}
	return &PatternStats{Pattern: pattern, ByModel: byModel}
}

// CapabilityLedger is the persisted keyword → pattern-stats mapping.
type CapabilityLedger struct {
	Patterns     map[string]*PatternStats `json:"patterns"`
	TotalEntries int                      `json:"totalEntries"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

// NewCapabilityLedger returns an empty, schema-valid ledger.
func NewCapabilityLedger() *CapabilityLedger {
	return &CapabilityLedger{Patterns: make(map[string]*PatternStats)}
}

// Recommendation is a single router-facing suggestion derived from the
// routing profile.
type Recommendation struct {
	Tier   Tier    `json:"tier"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// Threshold is per (tier, complexity) routing data.
// Invariant I2: 0 <= MinSuccessRate <= 1 and MinSamples >= 0.
type Threshold struct {
	MinSuccessRate float64 `json:"minSuccessRate"`
	MinSamples     int     `json:"minSamples"`
	Skip           bool    `json:"skip"`
}

// RoutingProfile is the persisted adaptive routing data.
type RoutingProfile struct {
	Version           int                  `json:"version"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	TaskCount         int                  `json:"taskCount"`
	Thresholds        map[string]*Threshold `json:"thresholds"` // key: "tier:complexity"
	ModelSuccessRates map[Tier]float64     `json:"modelSuccessRates"`
	Recommendations   []Recommendation     `json:"recommendations,omitempty"`
}

// NewRoutingProfile returns an empty, schema-valid profile.
func NewRoutingProfile() *RoutingProfile {
	return &RoutingProfile{
		Thresholds:        make(map[string]*Threshold),
		ModelSuccessRates: make(map[Tier]float64),
	}
}

// ThresholdKey formats the (tier, complexity) composite key used in the
// Thresholds map.
func ThresholdKey(t Tier, c Complexity) string {
	return t.String() + ":" + c.String()
}
