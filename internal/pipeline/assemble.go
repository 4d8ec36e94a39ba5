package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/dedup"
	"github.com/valpere/synsetran/internal/lexicon"
	"github.com/valpere/synsetran/internal/schema"
	"github.com/valpere/synsetran/internal/synset"
)

// maxSummarySynonyms caps the synonyms listed in a curator summary.
const maxSummarySynonyms = 5

func (r *run) assemble(s synset.Synset, definition, review schema.Payload, filtered []string) *Result {
	def, source := resolveDefinition(definition, review)
	r.audit.DefinitionSource = source

	ordered := dedup.Ordered(filtered)
	synonyms := dedup.Compounds(ordered, r.logger)
	r.audit.DroppedCompounds = missing(ordered, synonyms)

	translation := ""
	if len(synonyms) > 0 {
		translation = synonyms[0]
	}

	examples := mergeExamples(definition.Strings("examples"), review.Strings("examples"))

	notes := definition.String("notes")
	if notes == "" {
		notes = review.String("notes")
	}

	if r.o.langcheck != nil && def != "" {
		v := r.o.langcheck.Check(def, r.o.config.TargetLang)
		r.audit.LanguageCheck = &v
		if !v.Matches {
			r.logger.Warn("definition language mismatch", zap.String("reason", v.Reason))
		}
	}

	r.audit.Calls = r.state.Calls()
	r.audit.Logs = make([]CallSummary, 0, len(r.audit.Calls))
	for _, c := range r.audit.Calls {
		r.audit.Logs = append(r.audit.Logs, summarize(c))
	}

	result := &Result{
		SynsetID:              s.ID,
		Translation:           translation,
		DefinitionTranslation: def,
		TranslatedSynonyms:    synonyms,
		Examples:              examples,
		Notes:                 notes,
		SourceLang:            r.o.config.SourceLang,
		TargetLang:            r.o.config.TargetLang,
		Source:                s,
		Payload:               r.audit,
	}
	result.CuratorSummary = summary{
		targetLang:  r.o.config.TargetLang,
		translation: translation,
		definition:  def,
		metadata:    r.audit.Metadata,
		synonyms:    synonyms,
		examples:    examples,
		notes:       notes,
	}.render()

	r.logger.Info("synset translated",
		zap.String("translation", translation),
		zap.Int("synonyms", len(synonyms)),
		zap.Int("calls", len(r.audit.Calls)),
		zap.String("status", result.Status()),
	)
	return result
}

// resolveDefinition prefers the translated definition and adopts the revised
// one only when the review asks for revision or the translation is empty.
func resolveDefinition(definition, review schema.Payload) (string, string) {
	primary := definition.String("definition_translation")
	revised := review.String("revised_definition")
	if revised != "" && (review.String("status") == schema.StatusNeedsRevision || primary == "") {
		return revised, DefinitionFromReview
	}
	return primary, DefinitionFromTranslation
}

func mergeExamples(lists ...[]string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, list := range lists {
		for _, ex := range list {
			ex = strings.TrimSpace(ex)
			if ex == "" {
				continue
			}
			if _, ok := seen[ex]; ok {
				continue
			}
			seen[ex] = struct{}{}
			out = append(out, ex)
		}
	}
	return out
}

// missing returns the words of all that are absent from kept.
func missing(all, kept []string) []string {
	in := make(map[string]struct{}, len(kept))
	for _, w := range kept {
		in[w] = struct{}{}
	}
	var out []string
	for _, w := range all {
		if _, ok := in[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}

type summary struct {
	targetLang  string
	translation string
	definition  string
	metadata    *lexicon.Metadata
	synonyms    []string
	examples    []string
	notes       string
}

func (s summary) render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Headword (%s): %s\n", s.targetLang, dash(s.translation))
	fmt.Fprintf(&b, "Definition translation: %s\n", dash(s.definition))

	if s.metadata != nil {
		if s.metadata.LexicalCategory != "" {
			fmt.Fprintf(&b, "Lexical category: %s\n", s.metadata.LexicalCategory)
		}
		if len(s.metadata.TopicDomains) > 0 {
			fmt.Fprintf(&b, "Topic domains: %s\n", strings.Join(s.metadata.TopicDomains, ", "))
		}
	}

	if len(s.synonyms) == 0 {
		b.WriteString("Synonym candidates: (none returned)\n")
	} else {
		b.WriteString("Synonym candidates:\n")
		shown := s.synonyms
		if len(shown) > maxSummarySynonyms {
			shown = shown[:maxSummarySynonyms]
		}
		for _, syn := range shown {
			fmt.Fprintf(&b, "  • %s\n", syn)
		}
		if extra := len(s.synonyms) - len(shown); extra > 0 {
			fmt.Fprintf(&b, "  (+%d more candidates)\n", extra)
		}
	}

	if len(s.examples) == 0 {
		b.WriteString("Example sentences: none")
	} else {
		fmt.Fprintf(&b, "Example sentences: %d (showing first)\n", len(s.examples))
		fmt.Fprintf(&b, "  “%s”", s.examples[0])
	}

	if s.notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", s.notes)
	}
	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
