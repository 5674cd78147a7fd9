// Package redact scrubs credentials, connection strings, file paths and
// similar details from strings before they are logged. Secrets is the narrow
// variant applied to job error messages, which are stored and shown to their
// owner and must otherwise stay readable.
package redact

import "regexp"

// Placeholders substituted for redacted text.
const (
	Placeholder           = "[REDACTED]"
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	PathPlaceholder       = "[REDACTED_PATH]"
	JWTPlaceholder        = "[REDACTED_JWT]"
	HostPlaceholder       = "[REDACTED_HOST]"
	SQLPlaceholder        = "[REDACTED_SQL]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

var (
	connectionString = regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mongodb(?:\+srv)?|rediss?|db|database)://[^@\s]+@`)
	jwtToken         = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	googleAPIKey     = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
)

// rules are applied in order. Connection strings and keys run before the
// generic host and path rules so their placeholders stay specific.
var rules = []rule{
	// postgres://user:pass@, mongodb+srv://user:pass@, redis://:pass@
	{connectionString, CredentialPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), CredentialPlaceholder},
	{jwtToken, JWTPlaceholder},
	// Google API keys as used by Gemini.
	{googleAPIKey, KeyPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|key|access|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), KeyPlaceholder},
	{regexp.MustCompile(`(AKIA|AccessKey(Id)?)([^a-zA-Z0-9])?[A-Z0-9]{8,}`), KeyPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|GRANT)[\s\w,*()]+(?:FROM|INTO|SET|TABLE|DATABASE|SCHEMA|VIEW)(?:[\s\w,*()='"]+)?`), SQLPlaceholder},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), PathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), PathPlaceholder},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`), HostPlaceholder},
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`), HostPlaceholder},
}

// secretRules only match values that are unambiguously credentials.
var secretRules = []rule{
	{connectionString, CredentialPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)(\s*[=:]\s*['"]?)[^'"&\s]{3,}`), CredentialPlaceholder},
	{jwtToken, JWTPlaceholder},
	{googleAPIKey, KeyPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|secret)(\s*[=:]\s*['"]?)[A-Za-z0-9_\-.~+/]{8,}`), KeyPlaceholder},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), KeyPlaceholder},
}

// String returns input with every sensitive fragment replaced by a placeholder.
func String(input string) string {
	return apply(rules, input)
}

// Secrets returns input with credentials, tokens and keys replaced. Unlike
// String it leaves SQL, paths, hosts and other ordinary text alone.
func Secrets(input string) string {
	return apply(secretRules, input)
}

func apply(rs []rule, input string) string {
	if input == "" {
		return input
	}
	for _, r := range rs {
		input = r.pattern.ReplaceAllString(input, r.placeholder)
	}
	return input
}

// Error redacts err.Error(). A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
