package match

// Helpers for digging through the generic JSON values the extractor
// produces. Frames come in several historical shapes, so everything is
// key-presence checks over map[string]any rather than typed structs.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt64 coerces the numeric representations encoding/json may
// produce. Returns false for anything non-numeric.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// getMap returns m[key] as a map, or nil when absent or another type.
func getMap(m map[string]any, key string) map[string]any {
	inner, _ := asMap(m[key])
	return inner
}

// getSlice returns m[key] as a slice, or nil.
func getSlice(m map[string]any, key string) []any {
	s, _ := asSlice(m[key])
	return s
}

// firstString returns the first non-empty string among m's values for
// the given keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}
