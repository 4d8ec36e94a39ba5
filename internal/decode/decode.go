// Package decode recovers a JSON object from free-form model output.
//
// Models wrap their answers in reasoning blocks, markdown fences, chatty
// preambles or emit slightly broken JSON. Payload tries a cascade of
// strategies and never fails: the worst case is a mapping that carries the
// cleaned text under FreeTextKey.
package decode

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// FreeTextKey holds the cleaned model text when no JSON object could be
// recovered.
const FreeTextKey = "free_text"

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Payload extracts a JSON object from raw model text. First success wins:
//  1. the contents of a fenced code block
//  2. the cleaned text verbatim
//  3. the first balanced top-level {...} substring
//  4. a tolerant repair pass over each of the above
//
// Empty input yields EmptyResult; when everything fails the cleaned text is
// returned under FreeTextKey.
func Payload(raw string) map[string]any {
	cleaned := StripReasoning(raw)
	if cleaned == "" {
		return EmptyResult()
	}

	cands := candidates(cleaned)
	for _, c := range cands {
		if m, ok := parseObject(c); ok {
			return m
		}
	}
	for _, c := range cands {
		if fixed, ok := repair(c); ok {
			if m, ok := parseObject(fixed); ok {
				return m
			}
		}
	}

	return map[string]any{FreeTextKey: Clean(cleaned)}
}

// EmptyResult is the explicit mapping returned for empty model output.
func EmptyResult() map[string]any {
	return map[string]any{
		"translation": "",
		"examples":    []any{},
		"notes":       nil,
	}
}

func candidates(cleaned string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		add(m[1])
	}
	add(cleaned)
	add(firstObject(cleaned))
	// Greedy span covers objects truncated mid-way, for the repair pass.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			add(cleaned[start : end+1])
		} else {
			add(cleaned[start:])
		}
	}
	return out
}

// firstObject returns the first balanced {...} span, ignoring braces that
// appear inside JSON strings. It returns "" when no balanced span exists.
func firstObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func parseObject(s string) (map[string]any, bool) {
	if !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

// repair must not take the decoder down with it.
func repair(s string) (fixed string, ok bool) {
	defer func() {
		if recover() != nil {
			fixed, ok = "", false
		}
	}()
	out, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", false
	}
	return out, true
}
