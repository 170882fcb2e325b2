package logging

import "regexp"

// Patterns for credentials that must never reach the log output. Config
// values (API tokens, socket auth) are logged at startup, so anything
// token-shaped is scrubbed first.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{16,})`),
	regexp.MustCompile(`(?i)(token|secret|password|auth|key)[=:]["']?([a-zA-Z0-9+/=_-]{16,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credential-shaped substrings in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}
