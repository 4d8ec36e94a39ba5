package schema

import "strings"

// SentinelMessage marks a stage whose every attempt was rejected.
const SentinelMessage = "max retries exceeded"

// Payload is a validated stage payload. Values keep their validated Go types
// in memory and plain JSON types after a round trip through storage, so the
// accessors accept both.
type Payload map[string]any

// Sentinel returns the "no usable data" payload.
func Sentinel() Payload {
	return Payload{"error": SentinelMessage}
}

// IsSentinel reports whether p is the exhausted-retries marker. A nil payload
// counts as no data as well.
func (p Payload) IsSentinel() bool {
	if p == nil {
		return true
	}
	msg, ok := p["error"].(string)
	return ok && msg == SentinelMessage
}

// String returns the trimmed string under key, or "".
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

// OptString returns the trimmed string under key and whether it was set to a
// non-empty value.
func (p Payload) OptString(key string) (string, bool) {
	s := p.String(key)
	return s, s != ""
}

// Strings returns the non-empty trimmed strings under key, skipping nulls.
func (p Payload) Strings(key string) []string {
	var out []string
	switch v := p[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// StringMap returns the string-valued entries under key. Null values are
// skipped.
func (p Payload) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := p[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// Map returns the object under key, or nil.
func (p Payload) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// Objects returns the list of objects under key.
func (p Payload) Objects(key string) []map[string]any {
	switch v := p[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
