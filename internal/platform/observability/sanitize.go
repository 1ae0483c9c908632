package observability

import "unicode"

// sanitize drops control characters and bounds the length of values written to logs.
func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return string(out)
}

// SanitizeRoute bounds a route pattern.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitize(route, 180)
}
