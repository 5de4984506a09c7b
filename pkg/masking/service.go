package masking

import "log/slog"

// Service applies secret masking to briefing context, verification
// output, and anything else crossing the boundary into a log line, a
// learning-store file, or an LLM prompt. Created once per worker
// process, stateless aside from its compiled patterns.
type Service struct {
	enabled  bool
	patterns []*CompiledPattern
	maskers  []Masker
	logger   *slog.Logger
}

// New builds a Service with the built-in pattern sweep plus the
// structural YAML/JSON masker. enabled=false makes Mask a no-op, for
// deployments that disable masking entirely (pkg/config's MaskingConfig).
func New(enabled bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		enabled:  enabled,
		patterns: builtinPatterns(),
		maskers:  []Masker{&StructuredSecretMasker{}},
		logger:   logger,
	}
	if enabled {
		s.logger.Info("masking: service initialized", "patterns", len(s.patterns), "maskers", len(s.maskers))
	}
	return s
}

// Mask applies every structural masker whose AppliesTo check matches,
// then sweeps the result with every regex pattern. Fail-open: a
// masker error leaves that masker's pass a no-op rather than blocking
// the worker, since briefings must still reach the LLM even if masking
// degrades: a fail-open choice.
func (s *Service) Mask(content string) string {
	if !s.enabled || content == "" {
		return content
	}

	masked := content
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
