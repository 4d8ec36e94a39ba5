// Package dedup removes redundant synonym candidates. Candidates are compared
// by their NFC, lower-cased form while survivors keep their original
// spelling and order.
package dedup

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Key is the comparison form of a candidate.
func Key(s string) string {
	// A Caser is stateful, so one is built per call.
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(s)))
}

// Ordered trims entries, drops empty ones and removes duplicates, keeping the
// first occurrence of each key.
func Ordered(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		k := Key(w)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Compounds drops every multi-word entry that contains a single-word entry as
// a whole token: once "centar" is present, "administrativni centar" adds
// nothing. Sets without a shared single-word base are returned unchanged
// apart from trimming. Each removal is logged.
func Compounds(words []string, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}

	singles := make(map[string]struct{})
	for _, w := range words {
		if k := Key(w); k != "" && !strings.ContainsFunc(k, unicode.IsSpace) {
			singles[k] = struct{}{}
		}
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		k := Key(w)
		if k == "" {
			continue
		}
		if base, ok := sharedBase(k, singles); ok {
			logger.Info("dropped redundant compound",
				zap.String("compound", w),
				zap.String("base", base),
			)
			continue
		}
		out = append(out, w)
	}
	return out
}

func sharedBase(key string, singles map[string]struct{}) (string, bool) {
	tokens := strings.Fields(key)
	if len(tokens) < 2 {
		return "", false
	}
	for _, tok := range tokens {
		if _, ok := singles[tok]; ok {
			return tok, true
		}
	}
	return "", false
}
