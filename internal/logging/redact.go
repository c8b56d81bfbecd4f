package logging

import (
	"regexp"
	"strings"
)

// Field names whose values never reach a log line or a config dump.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"private_key",
	"privatekey",
	"credential",
	"nats_token",
}

var secretPatterns = []*regexp.Regexp{
	// PEM blocks (keys, certificates).
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`),

	// Bare base64 key material or ciphertext.
	regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`),

	// key=value style secrets.
	regexp.MustCompile(`(?i)(key|token|secret|password)[=:]["']?([a-zA-Z0-9+/=_-]{32,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactMap redacts sensitive fields in a (possibly nested) map.
func RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case IsSensitiveField(k):
			if str, ok := v.(string); ok && str == "" {
				result[k] = ""
				continue
			}
			result[k] = RedactedValue
		default:
			switch typed := v.(type) {
			case map[string]any:
				result[k] = RedactMap(typed)
			case string:
				result[k] = Redact(typed)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
