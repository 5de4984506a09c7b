package learning

import (
	"log/slog"
	"time"

	"github.com/undercity/undercity/pkg/models"
)

// defaultMinSuccessRate is the starting threshold for every (tier,
// complexity) cell before any adaptation.
const defaultMinSuccessRate = 0.70

// DefaultMinNewTasks is how many new tasks must accumulate before the
// routing profile is recomputed.
const DefaultMinNewTasks = 5

// Profile wraps the persisted routing profile (routing-profile.json).
type Profile struct {
	path string
	data *models.RoutingProfile
}

// LoadProfile loads the routing profile from path, defaulting to an
// empty profile when absent or corrupt.
func LoadProfile(path string) (*Profile, error) {
	data := models.NewRoutingProfile()
	present, err := loadJSON(path, data)
	if err != nil {
		return nil, err
	}
	if !present || data.Thresholds == nil {
		data = models.NewRoutingProfile()
	}
	if data.ModelSuccessRates == nil {
		data.ModelSuccessRates = make(map[models.Tier]float64)
	}
	return &Profile{path: path, data: data}, nil
}

// Save persists the profile atomically.
func (p *Profile) Save() error {
	return saveJSON(p.path, p.data)
}

// Snapshot returns the underlying profile for read-only use.
func (p *Profile) Snapshot() *models.RoutingProfile {
	return p.data
}

// Threshold returns the threshold for (tier, complexity), or a default
// threshold (minSuccessRate=0.70, minSamples=5, skip=false) when no cell
// has been computed yet.
func (p *Profile) Threshold(tier models.Tier, complexity models.Complexity) models.Threshold {
	if t, ok := p.data.Thresholds[models.ThresholdKey(tier, complexity)]; ok {
		return *t
	}
	return models.Threshold{MinSuccessRate: defaultMinSuccessRate, MinSamples: 5, Skip: false}
}

// ModelSuccessRate returns the observed success rate for tier, or 0 when
// unknown.
func (p *Profile) ModelSuccessRate(tier models.Tier) float64 {
	return p.data.ModelSuccessRates[tier]
}

// CellSample is one (tier, complexity) outcome aggregate fed into
// RefreshIfDue.
type CellSample struct {
	Tier       models.Tier
	Complexity models.Complexity
	Attempts   int
	Successes  int
}

// minSamplesForScale and maxSamplesForScale are the sample-size anchors
// for the minSamples linear interpolation.
const (
	scaleLowSamples, scaleLowMinSamples   = 3, 5
	scaleHighSamples, scaleHighMinSamples = 10, 20
)

func scaledMinSamples(attempts int) int {
	if attempts <= scaleLowSamples {
		return scaleLowMinSamples
	}
	if attempts >= scaleHighSamples {
		return scaleHighMinSamples
	}
	frac := float64(attempts-scaleLowSamples) / float64(scaleHighSamples-scaleLowSamples)
	return scaleLowMinSamples + int(frac*float64(scaleHighMinSamples-scaleLowMinSamples))
}

// RefreshIfDue recomputes the routing profile from cell samples when at
// least minNewTasks have accumulated since the last build. It
// returns whether a recomputation happened. Recomputing on the same
// input is deterministic: no randomness, no wall-clock reads
// feed into the threshold math (only UpdatedAt, set by the caller after
// return, is non-deterministic).
func (p *Profile) RefreshIfDue(newTaskCount int, minNewTasks int, cells []CellSample) bool {
	if minNewTasks <= 0 {
		minNewTasks = DefaultMinNewTasks
	}
	if newTaskCount-p.data.TaskCount < minNewTasks {
		return false
	}

	tierTotals := map[models.Tier]struct{ attempts, successes int }{}

	for _, cell := range cells {
		tierAgg := tierTotals[cell.Tier]
		tierAgg.attempts += cell.Attempts
		tierAgg.successes += cell.Successes
		tierTotals[cell.Tier] = tierAgg

		if cell.Attempts < 3 {
			continue // small-sample cells keep defaults
		}

		key := models.ThresholdKey(cell.Tier, cell.Complexity)
		prev := p.Threshold(cell.Tier, cell.Complexity)

		rate := 0.0
		if cell.Attempts > 0 {
			rate = float64(cell.Successes) / float64(cell.Attempts)
		}
		width := WilsonWidth(cell.Successes, cell.Attempts)

		newMin := defaultMinSuccessRate
		switch {
		case rate > 0.85:
			newMin = defaultMinSuccessRate - width*0.15
			if newMin < 0.5 {
				newMin = 0.5
			}
		case rate < 0.55:
			newMin = defaultMinSuccessRate + width*0.15
			if newMin > 0.9 {
				newMin = 0.9
			}
		default:
			newMin = prev.MinSuccessRate
		}

		skip := rate < 0.4 && cell.Attempts >= 5
		minSamples := scaledMinSamples(cell.Attempts)

		if diff := newMin - prev.MinSuccessRate; diff > 0.05 || diff < -0.05 {
			slog.Info("routing profile threshold crossed", "cell", key, "from", prev.MinSuccessRate, "to", newMin)
		}
		if skip != prev.Skip {
			slog.Info("routing profile skip flag flipped", "cell", key, "skip", skip)
		}

		p.data.Thresholds[key] = &models.Threshold{
			MinSuccessRate: newMin,
			MinSamples:     minSamples,
			Skip:           skip,
		}
	}

	for tier, agg := range tierTotals {
		if agg.attempts == 0 {
			continue
		}
		p.data.ModelSuccessRates[tier] = float64(agg.successes) / float64(agg.attempts)
	}

	p.data.TaskCount = newTaskCount
	p.data.Version++
	p.data.UpdatedAt = time.Now()
	return true
}
