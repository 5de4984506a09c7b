package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/undercity/undercity/pkg/models"
)

// ErrorStore is the content-addressed failure→fix memory.
type ErrorStore struct {
	path string
	data *models.ErrorPatternStore
}

// LoadErrorStore loads the store from path, defaulting to empty on
// absence or corruption.
func LoadErrorStore(path string) (*ErrorStore, error) {
	data := models.NewErrorPatternStore()
	present, err := loadJSON(path, data)
	if err != nil {
		return nil, err
	}
	if !present || data.Patterns == nil {
		data = models.NewErrorPatternStore()
	}
	if data.Pending == nil {
		data.Pending = make(map[string]*models.PendingError)
	}
	return &ErrorStore{path: path, data: data}, nil
}

// Save persists the store atomically.
func (s *ErrorStore) Save() error {
	return saveJSON(s.path, s.data)
}

var normaliseWS = regexp.MustCompile(`\s+`)
var normaliseDigits = regexp.MustCompile(`\d+`)
var normaliseQuoted = regexp.MustCompile(`"[^"]*"|'[^']*'`)

// normaliseMessage strips volatile substrings (line numbers, quoted
// identifiers, repeated whitespace) from an error message so the same
// underlying failure hashes to the same signature across runs.
func normaliseMessage(message string) string {
	m := normaliseDigits.ReplaceAllString(message, "#")
	m = normaliseQuoted.ReplaceAllString(m, "\"X\"")
	m = normaliseWS.ReplaceAllString(m, " ")
	m = strings.TrimSpace(m)
	const prefixLen = 160
	if len(m) > prefixLen {
		m = m[:prefixLen]
	}
	return m
}

// Signature computes the stable hash over (category, normalised message
// prefix) used throughout the store.
func Signature(category models.IssueCategory, message string) string {
	prefix := normaliseMessage(message)
	sum := sha256.Sum256([]byte(string(category) + "|" + prefix))
	return hex.EncodeToString(sum[:])[:16]
}

// RecordPendingError stores a (taskId → signature) mapping plus the
// pre-attempt file list, returning the signature so the caller can
// correlate a later success or permanent failure.
func (s *ErrorStore) RecordPendingError(taskID string, category models.IssueCategory, message string, filesBefore []string) string {
	sig := Signature(category, message)
	s.data.Pending[taskID] = &models.PendingError{
		TaskID:      taskID,
		Signature:   sig,
		FilesBefore: filesBefore,
		CreatedAt:   time.Now(),
	}
	return sig
}

// diffFiles returns elements of after not present in before.
func diffFiles(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, f := range before {
		seen[f] = true
	}
	var out []string
	for _, f := range after {
		if !seen[f] {
			out = append(out, f)
		}
	}
	return out
}

// RecordSuccessfulFix resolves the pending signature for taskID, appends
// the delta between filesBefore and filesChanged to the pattern's
// fixFiles list, and clears the pending entry.
func (s *ErrorStore) RecordSuccessfulFix(taskID string, filesChanged []string) {
	pending, ok := s.data.Pending[taskID]
	if !ok {
		return
	}
	delete(s.data.Pending, taskID)

	delta := diffFiles(pending.FilesBefore, filesChanged)
	pattern, ok := s.data.Patterns[pending.Signature]
	if !ok {
		return
	}
	if len(delta) > 0 {
		pattern.FixFiles = append(pattern.FixFiles, delta)
	}
}

// PermanentFailureInput groups the fields recorded on terminal failure.
type PermanentFailureInput struct {
	Category       models.IssueCategory
	Message        string
	TaskObjective  string
	FinalTier      models.Tier
	AttemptCount   int
	FilesModified  []string
}

// RecordPermanentFailure stores a permanent error-pattern entry for
// in.Category/in.Message, incrementing Occurrences if the signature was
// already known. The returned signature is identical whether
// derived via RecordPendingError or directly here, for the same
// (category, message) pair.
func (s *ErrorStore) RecordPermanentFailure(in PermanentFailureInput) string {
	sig := Signature(in.Category, in.Message)
	pattern, ok := s.data.Patterns[sig]
	if !ok {
		pattern = &models.ErrorPattern{
			Signature:     sig,
			Category:      in.Category,
			MessagePrefix: normaliseMessage(in.Message),
		}
		s.data.Patterns[sig] = pattern
	}
	pattern.Occurrences++
	pattern.LastSeen = time.Now()
	pattern.Permanent = true
	return sig
}

// RemediationResult is the outcome of tryAutoRemediate.
type RemediationResult struct {
	Attempted     bool
	Applied       bool
	PatchedFiles  []string
}

// patchTemplates maps a category to a description of the category-safe
// patch it knows how to apply. Undercity ships none built in (this is a
// narrow, pluggable extension point); callers register templates via
// RegisterPatchTemplate.
type patchTemplate func(cwd, message string) (applied bool, patchedFiles []string, err error)

var registeredTemplates = map[models.IssueCategory]patchTemplate{}

// RegisterPatchTemplate installs a category-specific auto-remediation
// template.
func RegisterPatchTemplate(category models.IssueCategory, fn patchTemplate) {
	registeredTemplates[category] = fn
}

// TryAutoRemediate looks up a category-specific patch template and
// applies it if one is registered and it applies cleanly. Errors
// from a template never propagate: they degrade to "not applied",
// consistent with the verification-harness failure semantics: remediation is advisory, never a hard failure.
func (s *ErrorStore) TryAutoRemediate(category models.IssueCategory, message, cwd string) RemediationResult {
	fn, ok := registeredTemplates[category]
	if !ok {
		return RemediationResult{Attempted: false}
	}
	applied, files, err := fn(cwd, message)
	if err != nil || !applied {
		return RemediationResult{Attempted: true, Applied: false}
	}
	return RemediationResult{Attempted: true, Applied: true, PatchedFiles: files}
}

// GetFailureWarningsForTask returns permanent-failure warnings whose
// fixFiles or category touch any of the given target files, for display
// in a new task's briefing.
func (s *ErrorStore) GetFailureWarningsForTask(targetFiles []string) []*models.ErrorPattern {
	targets := make(map[string]bool, len(targetFiles))
	for _, f := range targetFiles {
		targets[f] = true
	}
	var out []*models.ErrorPattern
	for _, pattern := range s.data.Patterns {
		if !pattern.Permanent {
			continue
		}
		for _, fixSet := range pattern.FixFiles {
			for _, f := range fixSet {
				if targets[f] {
					out = append(out, pattern)
				}
			}
		}
	}
	return out
}

// FormatFixSuggestionsForPrompt renders a compact, prompt-sized summary
// of fix suggestions for the given error patterns.
func FormatFixSuggestionsForPrompt(patterns []*models.ErrorPattern) string {
	if len(patterns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known fix suggestions from past failures:\n")
	for _, p := range patterns {
		b.WriteString("- [" + string(p.Category) + "] " + p.MessagePrefix)
		if len(p.FixFiles) > 0 {
			b.WriteString(" (previously fixed via: ")
			b.WriteString(strings.Join(p.FixFiles[len(p.FixFiles)-1], ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}
