package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns is the fixed sweep of generic secret shapes this system
// cares about: credential forms that show up in target repos' .env files,
// CI config, and LLM tool output.
func builtinPatterns() []*CompiledPattern {
	return []*CompiledPattern{
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Replacement: "[MASKED_AWS_ACCESS_KEY]",
		},
		{
			Name:        "aws_secret_key",
			Regex:       regexp.MustCompile(`(?i)(aws_secret_access_key\s*[:=]\s*)["']?[A-Za-z0-9/+=]{40}["']?`),
			Replacement: "${1}[MASKED_AWS_SECRET_KEY]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]{8,}=*`),
			Replacement: "Bearer [MASKED_TOKEN]",
		},
		{
			Name:        "private_key_block",
			Regex:       regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
			Replacement: "[MASKED_PRIVATE_KEY]",
		},
		{
			Name:        "generic_secret_assignment",
			Regex:       regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token|password|passwd|credential)\s*[:=]\s*)["']?[^\s"']{6,}["']?`),
			Replacement: "${1}[MASKED_SECRET]",
		},
		{
			Name:        "github_token",
			Regex:       regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
			Replacement: "[MASKED_GITHUB_TOKEN]",
		},
		{
			Name:        "anthropic_api_key",
			Regex:       regexp.MustCompile(`\bsk-ant-[A-Za-z0-9\-_]{20,}\b`),
			Replacement: "[MASKED_API_KEY]",
		},
	}
}
