package learning

import (
	"strings"
)

// actionKeywords is the closed set of action verbs the capability ledger
// and router match against. A closed set keeps the
// ledger from fragmenting into one pattern per unique objective.
var actionKeywords = map[string]bool{
	"fix": true, "add": true, "remove": true, "delete": true, "update": true,
	"refactor": true, "rename": true, "implement": true, "create": true,
	"optimize": true, "optimise": true, "improve": true, "migrate": true,
	"test": true, "document": true, "investigate": true, "debug": true,
	"upgrade": true, "revert": true, "extract": true, "merge": true,
	"clean": true, "cleanup": true, "validate": true, "secure": true,
	"deprecate": true, "replace": true, "simplify": true, "split": true,
}

// stripPunct removes characters that are neither letters, digits, nor
// whitespace, per the "stripped of punctuation" keyword rule.
func stripPunct(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '\t', r == '\n':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// ExtractKeywords lowercases, strips punctuation, tokenises, deduplicates
// and matches an objective against the closed action-verb set. An empty or punctuation-only objective yields zero keywords.
func ExtractKeywords(objective string) []string {
	cleaned := stripPunct(strings.ToLower(objective))
	fields := strings.Fields(cleaned)

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSuffix(f, "ing")
		f = strings.TrimSuffix(f, "ed")
		f = strings.TrimSuffix(f, "s")
		if !actionKeywords[f] {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// IsTestWritingObjective implements the "test-writing task" predicate.
func IsTestWritingObjective(objective string) bool {
	lower := strings.ToLower(objective)
	for _, phrase := range []string{"test", "tests", "testing", "spec", "coverage"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsCreateObjective implements the "create task" predicate used by the
// pre-flight validation step: a task that is expected to
// introduce new files, so a missing target path is not grounds for an
// immediate INVALID_TARGET failure.
func IsCreateObjective(objective string) bool {
	lower := strings.ToLower(objective)
	for _, verb := range []string{"create", "add", "new ", "scaffold", "generate"} {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}
