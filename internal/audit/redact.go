// Package audit provides payload redaction and best-effort audit persistence.
//
// Redaction walks parsed JSON values and destroys the values of keys that may
// carry credentials, preserving the surrounding structure so an audit reader
// can still see the shape of a request. Persistence goes through Recorder,
// which never lets an audit failure affect the request being audited.
package audit

import "strings"

// RedactedMarker replaces every sensitive value.
const RedactedMarker = "[REDACTED]"

// sensitiveKeys is the denylist of payload keys whose values are never stored.
// Matching is case-insensitive; any key containing "token" or "secret" as a
// substring is also caught.
var sensitiveKeys = []string{
	"password", "passwd", "pass", "token", "refresh", "access",
	"authorization", "auth", "api_key", "secret",
}

var sensitiveKeySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		set[k] = struct{}{}
	}
	return set
}()

// IsSensitiveKey reports whether a payload key must have its value redacted.
func IsSensitiveKey(key string) bool {
	lk := strings.ToLower(key)
	if _, ok := sensitiveKeySet[lk]; ok {
		return true
	}
	return strings.Contains(lk, "token") || strings.Contains(lk, "secret")
}

// Redact returns a copy of a parsed JSON value with every sensitive map entry
// replaced by RedactedMarker. Nested maps and slices are walked to unbounded
// depth; primitives pass through unchanged. The input is never mutated.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
			} else {
				out[k] = Redact(item)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

// ScrubString replaces occurrences of the denylisted key names in raw text.
// Used as the fallback when a request body on a sensitive path is not valid
// JSON and structured redaction is impossible.
func ScrubString(s string) string {
	for _, k := range sensitiveKeys {
		s = strings.ReplaceAll(s, k, RedactedMarker)
	}
	return s
}
