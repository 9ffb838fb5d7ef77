package util

import "strings"

// SanitizePostgresText drops NUL bytes and invalid UTF-8, both of which
// Postgres rejects in text and jsonb values.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizePostgresProps returns a copy of props with every string, including
// map keys and strings nested in slices and maps, passed through
// SanitizePostgresText.
func SanitizePostgresProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[SanitizePostgresText(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizePostgresText(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = SanitizePostgresText(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	case map[string]any:
		return SanitizePostgresProps(t)
	default:
		return v
	}
}
