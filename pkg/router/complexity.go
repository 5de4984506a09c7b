package router

import (
	"strings"

	"github.com/undercity/undercity/pkg/models"
)

// criticalKeywords and simpleKeywords bias the keyword-based scorer used
// when no target-file metrics are available.
var (
	criticalKeywords = []string{"security", "auth", "migration", "schema", "payment", "credential", "encryption"}
	complexKeywords  = []string{"refactor", "architecture", "redesign", "concurrency", "race", "deadlock"}
	trivialKeywords  = []string{"typo", "rename", "comment", "whitespace", "formatting"}
)

// ScoreComplexity computes the complexity level for an objective. When
// metrics is non-nil (target files are known), the quantitative scorer
// runs; otherwise a keyword rule over the objective text decides.
func ScoreComplexity(objective string, metrics *models.FileMetrics) models.Complexity {
	if metrics != nil {
		return scoreFromMetrics(*metrics)
	}
	return scoreFromKeywords(objective)
}

func scoreFromKeywords(objective string) models.Complexity {
	lower := strings.ToLower(objective)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return models.ComplexityCritical
		}
	}
	for _, kw := range complexKeywords {
		if strings.Contains(lower, kw) {
			return models.ComplexityComplex
		}
	}
	for _, kw := range trivialKeywords {
		if strings.Contains(lower, kw) {
			return models.ComplexityTrivial
		}
	}
	return models.ComplexityStandard
}

// scoreFromMetrics weighs line count, function count, cross-package
// touch, code-health, and hotspot churn into one of the five complexity
// levels.
func scoreFromMetrics(m models.FileMetrics) models.Complexity {
	score := 0

	switch {
	case m.LineCount > 2000:
		score += 4
	case m.LineCount > 500:
		score += 3
	case m.LineCount > 150:
		score += 2
	case m.LineCount > 30:
		score += 1
	}

	switch {
	case m.FunctionCount > 40:
		score += 3
	case m.FunctionCount > 10:
		score += 2
	case m.FunctionCount > 2:
		score += 1
	}

	if m.CrossPackageTouch > 5 {
		score += 3
	} else if m.CrossPackageTouch > 1 {
		score += 1
	}

	if m.CodeHealthScore < 0.3 {
		score += 2
	} else if m.CodeHealthScore < 0.6 {
		score += 1
	}

	if m.HotspotHits > 10 {
		score += 2
	} else if m.HotspotHits > 3 {
		score += 1
	}

	switch {
	case score >= 10:
		return models.ComplexityCritical
	case score >= 7:
		return models.ComplexityComplex
	case score >= 4:
		return models.ComplexityStandard
	case score >= 1:
		return models.ComplexitySimple
	default:
		return models.ComplexityTrivial
	}
}
