package errors

import (
	"regexp"
	"strings"
)

// sensitiveKeyPattern matches detail keys that must never reach a client.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)password|token|secret|credential`)

// connStringPattern matches user:password@host fragments inside DSNs.
var connStringPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s]+@`)

// Scrub removes sensitive entries from an error data payload before it is
// emitted. Keys matching the sensitive set are dropped at every nesting
// level; string values that look like connection strings are redacted.
func Scrub(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	clean := make(map[string]interface{}, len(data))
	for key, value := range data {
		if sensitiveKeyPattern.MatchString(key) {
			continue
		}
		clean[key] = scrubValue(value)
	}
	return clean
}

func scrubValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return Scrub(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = scrubValue(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = redactConnectionStrings(item)
		}
		return out
	case string:
		return redactConnectionStrings(v)
	default:
		return value
	}
}

// redactConnectionStrings masks credentials embedded in DSN-shaped strings.
func redactConnectionStrings(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return connStringPattern.ReplaceAllString(s, "${1}***@")
}
