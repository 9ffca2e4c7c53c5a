package logging

import (
	"regexp"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`)
	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`)
	assignPattern = regexp.MustCompile(`(?i)\b(token|secret|password|api[_-]?key)(\s*[=:]\s*)["']?[^\s"'&]{8,}["']?`)
)

// secretKeys are substrings of field names whose values are never logged.
var secretKeys = []string{"token", "secret", "password", "authorization", "api_key", "apikey", "credential"}

// Redact masks bearer tokens, JWTs and key=value secrets in s.
func Redact(s string) string {
	s = bearerPattern.ReplaceAllString(s, RedactedValue)
	s = jwtPattern.ReplaceAllString(s, RedactedValue)
	return assignPattern.ReplaceAllString(s, "${1}${2}"+RedactedValue)
}

// RedactMap returns a copy of m with sensitive fields masked and every
// string value passed through Redact.
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = redactValue(k, v)
	}
	return out
}

func redactValue(key string, v any) any {
	if IsSensitiveField(key) {
		if s, ok := v.(string); ok && s == "" {
			return s
		}
		return RedactedValue
	}
	switch val := v.(type) {
	case string:
		return Redact(val)
	case map[string]any:
		return RedactMap(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = redactValue("", item)
		}
		return items
	default:
		return v
	}
}

// IsSensitiveField reports whether a field name looks like it holds a secret.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, key := range secretKeys {
		if strings.Contains(lower, key) {
			return true
		}
	}
	return false
}
