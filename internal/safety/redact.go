package safety

import (
	"regexp"
)

// Severity ranks how damaging a leaked secret of a given kind would be.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SecretPattern is one compiled detector in the redaction battery.
type SecretPattern struct {
	Name        string
	Severity    Severity
	Pattern     *regexp.Regexp
	Replacement string
}

// secretPatterns is the fixed battery applied to all tool output before it
// reaches the model or the terminal. Replacements embed the kind so redacted
// output stays debuggable. Order matters: specific providers before the
// generic assignment patterns.
var secretPatterns = []SecretPattern{
	{
		Name:        "anthropic_api_key",
		Severity:    SeverityCritical,
		Pattern:     regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{10,}`),
		Replacement: "[REDACTED_API_KEY]",
	},
	{
		Name:        "openai_api_key",
		Severity:    SeverityCritical,
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED_API_KEY]",
	},
	{
		Name:        "aws_access_key",
		Severity:    SeverityCritical,
		Pattern:     regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
		Replacement: "[REDACTED_AWS_KEY]",
	},
	{
		Name:        "bearer_token",
		Severity:    SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.=]{16,}`),
		Replacement: "[REDACTED_BEARER_TOKEN]",
	},
	{
		Name:        "private_key",
		Severity:    SeverityCritical,
		Pattern:     regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY( BLOCK)?-----`),
		Replacement: "[REDACTED_PRIVATE_KEY]",
	},
	{
		Name:        "api_key_assignment",
		Severity:    SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}['"]?`),
		Replacement: "[REDACTED_API_KEY]",
	},
	{
		Name:        "password_assignment",
		Severity:    SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(password|passwd)\s*[:=]\s*['"]?[^\s'"]{6,}['"]?`),
		Replacement: "[REDACTED_PASSWORD]",
	},
	{
		Name:        "secret_assignment",
		Severity:    SeverityMedium,
		Pattern:     regexp.MustCompile(`(?i)(secret|token)\s*[:=]\s*['"]?[A-Za-z0-9_\-\./+=]{12,}['"]?`),
		Replacement: "[REDACTED_SECRET]",
	},
}

// redactedMarker matches any marker this package emits, so a second pass
// leaves already-sanitized text untouched.
var redactedMarker = regexp.MustCompile(`\[REDACTED_[A-Z_]+\]`)

// SanitizeOutput masks secrets in tool output. It is idempotent:
// SanitizeOutput(SanitizeOutput(s)) == SanitizeOutput(s).
func SanitizeOutput(s string) string {
	if s == "" {
		return s
	}
	for _, sp := range secretPatterns {
		s = sp.Pattern.ReplaceAllStringFunc(s, func(match string) string {
			if redactedMarker.MatchString(match) {
				return match
			}
			return sp.Replacement
		})
	}
	return s
}

// DetectSecrets returns the names of every pattern matching the content.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}
	var found []string
	seen := make(map[string]bool)
	for _, sp := range secretPatterns {
		if sp.Pattern.MatchString(content) && !seen[sp.Name] {
			found = append(found, sp.Name)
			seen[sp.Name] = true
		}
	}
	return found
}

// Patterns exposes the battery for the scan command.
func Patterns() []SecretPattern {
	out := make([]SecretPattern, len(secretPatterns))
	copy(out, secretPatterns)
	return out
}
