// Package synset holds the source-language synset record fed to the
// translation pipeline and the loaders that read synsets from disk.
package synset

import (
	"fmt"
	"strconv"
	"strings"
)

// Synset is one source-language lexical sense. It is read-only input for the
// pipeline.
type Synset struct {
	ID         string   `json:"id" yaml:"id"`
	POS        string   `json:"pos" yaml:"pos"`
	Lemmas     []string `json:"lemmas" yaml:"lemmas"`
	Definition string   `json:"definition" yaml:"definition"`
	Examples   []string `json:"examples" yaml:"examples"`
}

// Historical field names accepted for the same concept, in lookup order.
var (
	idKeys         = []string{"id", "english_id", "ili_id"}
	lemmaKeys      = []string{"lemmas", "literals"}
	definitionKeys = []string{"definition", "gloss"}
	posKeys        = []string{"pos", "part_of_speech"}
	exampleKeys    = []string{"examples"}
)

// FromMap builds a Synset from a loosely-typed record. The first non-empty
// alias wins for every field; unknown keys are ignored.
func FromMap(m map[string]any) Synset {
	return Synset{
		ID:         firstString(m, idKeys),
		POS:        firstString(m, posKeys),
		Lemmas:     firstList(m, lemmaKeys),
		Definition: firstString(m, definitionKeys),
		Examples:   firstList(m, exampleKeys),
	}
}

// Translatable reports whether the synset carries anything a model could
// translate: at least one lemma or a definition.
func (s Synset) Translatable() bool {
	return len(s.CleanLemmas()) > 0 || strings.TrimSpace(s.Definition) != ""
}

// CleanLemmas returns the trimmed, non-empty lemmas in their original order.
func (s Synset) CleanLemmas() []string {
	return clean(s.Lemmas)
}

// CleanExamples returns the trimmed, non-empty examples in their original order.
func (s Synset) CleanExamples() []string {
	return clean(s.Examples)
}

// NormalizePOS maps a part-of-speech tag onto the Princeton WordNet tag set.
// Serbian WordNet marks adverbs with "b" where Princeton uses "r".
func NormalizePOS(pos string) string {
	p := strings.ToLower(strings.TrimSpace(pos))
	if p == "b" {
		return "r"
	}
	return p
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstList(m map[string]any, keys []string) []string {
	for _, k := range keys {
		if l := list(m[k]); len(l) > 0 {
			return l
		}
	}
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func list(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return clean(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalar(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := scalar(t); s != "" {
			return []string{s}
		}
		return nil
	}
}
