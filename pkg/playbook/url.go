package playbook

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks that a playbook URL uses an allowed scheme and,
// if an allowlist is configured, an allowed domain, applied before
// ever dialing out. A playbook URL isn't assumed to be GitHub-hosted.
func ValidateURL(rawURL string, allowedDomains []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only http and https allowed", parsed.Scheme)
	}

	if len(allowedDomains) > 0 {
		host := strings.ToLower(parsed.Hostname())
		allowed := false
		for _, domain := range allowedDomains {
			if host == domain || host == "www."+domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("domain %q not in allowed list", host)
		}
	}

	return nil
}
