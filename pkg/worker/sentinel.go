package worker

import (
	"regexp"
	"strings"
)

// SentinelKind identifies which of the three structured sentinels the
// LLM emitted.
type SentinelKind int

const (
	SentinelNone SentinelKind = iota
	SentinelAlreadyComplete
	SentinelInvalidTarget
	SentinelNeedsDecomposition
)

// Sentinel is a parsed structured signal from the LLM's output.
type Sentinel struct {
	Kind   SentinelKind
	Reason string
}

var sentinelPatterns = []struct {
	kind SentinelKind
	re   *regexp.Regexp
}{
	{SentinelAlreadyComplete, regexp.MustCompile(`(?s)TASK_ALREADY_COMPLETE:\s*(.*)`)},
	{SentinelInvalidTarget, regexp.MustCompile(`(?s)INVALID_TARGET:\s*(.*)`)},
	{SentinelNeedsDecomposition, regexp.MustCompile(`(?s)NEEDS_DECOMPOSITION:\s*(.*)`)},
}

// ParseSentinel scans text for one of the three fixed-format sentinel
// lines, returning the first match. The reason capture is truncated at
// the first newline so a sentinel followed by unrelated prose doesn't
// pull the rest of the message in.
func ParseSentinel(text string) *Sentinel {
	for _, p := range sentinelPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		reason := strings.TrimSpace(m[1])
		if idx := strings.IndexByte(reason, '\n'); idx >= 0 {
			reason = strings.TrimSpace(reason[:idx])
		}
		return &Sentinel{Kind: p.kind, Reason: reason}
	}
	return nil
}

// suggestedSubtasksFromReason splits a NEEDS_DECOMPOSITION reason on
// common list separators so the raw sentinel text yields a usable
// subtask list even when the LLM didn't emit structured JSON.
func suggestedSubtasksFromReason(reason string) []string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	var parts []string
	for _, sep := range []string{";", "\n", "|"} {
		if strings.Contains(reason, sep) {
			for _, p := range strings.Split(reason, sep) {
				p = strings.TrimSpace(p)
				if p != "" {
					parts = append(parts, p)
				}
			}
			return parts
		}
	}
	return []string{reason}
}
