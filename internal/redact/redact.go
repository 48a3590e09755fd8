// Package redact provides utilities for redacting sensitive information from strings
// before they are logged or returned in error responses. It keeps the OCR service
// token, credentials embedded in URLs, and server-side file paths out of log lines
// and client-facing messages.
package redact

import (
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// Precompiled regex patterns
var (
	// Authorization header values: "token <key>" and "bearer <key>".
	authSchemeRegex = regexp.MustCompile(`(?i)\b(token|bearer)\s+[A-Za-z0-9_\-.~+/=]{8,}`)

	// key=value and key: value pairs.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|access[_-]?token|token|secret|authorization)(["'\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`)

	// user:pass@ inside URLs.
	urlUserinfoRegex = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`)

	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// File paths. URLs are left alone by requiring no "//" before the match.
	unixPathRegex = regexp.MustCompile(`(^|[\s"'(=])(/[\w.-]+){2,}`)
	winPathRegex  = regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`)

	stackTraceRegex = regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`)

	credentialRules = []rule{
		{jwtTokenRegex, RedactedJWTPlaceholder},
		{authSchemeRegex, "${1} " + RedactedKeyPlaceholder},
		{apiKeyRegex, "${1}${2}" + RedactedKeyPlaceholder},
		{passwordRegex, RedactedCredentialPlaceholder},
		{urlUserinfoRegex, "${1}" + RedactedCredentialPlaceholder + "@"},
	}

	detailRules = []rule{
		{stackTraceRegex, RedactedStackPlaceholder},
		{unixPathRegex, "${1}" + RedactedPathPlaceholder},
		{winPathRegex, RedactedPathPlaceholder},
	}
)

func apply(input string, rules []rule) string {
	result := input
	for _, r := range rules {
		result = r.re.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Credentials redacts secrets only. File paths are kept, which makes it the
// right choice for server-side logs.
func Credentials(input string) string {
	if input == "" {
		return input
	}
	return apply(input, credentialRules)
}

// String redacts secrets, file paths and stack traces from the input string.
// Use it for anything returned to a client.
func String(input string) string {
	if input == "" {
		return input
	}
	return apply(apply(input, credentialRules), detailRules)
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
