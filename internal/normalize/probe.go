package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Probe helpers over untyped JSON trees. Provider response shapes drift
// across API versions, so every field read is a named-key probe with
// candidate spellings; a miss or a type mismatch means "not present",
// never an error.

// probeMap returns the first candidate key holding an object.
func probeMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if v, ok := m[k].(map[string]any); ok {
			return v
		}
	}
	return nil
}

// probeList returns the first candidate key holding an array.
func probeList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if v, ok := m[k].([]any); ok {
			return v
		}
	}
	return nil
}

// probeString returns the first candidate key holding a non-empty string.
func probeString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// probeStrings collects the string elements of the first candidate key
// holding an array. Non-string elements are skipped.
func probeStrings(m map[string]any, keys ...string) []string {
	items := probeList(m, keys...)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// probeID renders a numeric or numeric-string id field, for speaker ids
// that arrive as 1, 1.0, or "1".
func probeID(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case json.Number:
			return v.String()
		case string:
			if s := strings.TrimSpace(v); s != "" {
				if _, err := strconv.ParseInt(s, 10, 64); err == nil {
					return s
				}
			}
		}
	}
	return ""
}

// asMap safely views any value as an object.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
