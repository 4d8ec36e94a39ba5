// Package prompt renders the user prompt of every pipeline stage. Builders
// are pure: they only read the synset and upstream payloads.
package prompt

import (
	"fmt"
	"strings"

	"github.com/valpere/synsetran/internal/schema"
	"github.com/valpere/synsetran/internal/synset"
)

const (
	notAvailable = "(not available)"
	none         = "(none)"
)

// Input is the per-synset context shared by every builder.
type Input struct {
	Synset synset.Synset
	// Language names as they should appear in the prompt, e.g. "Serbian".
	SourceLanguage  string
	TargetLanguage  string
	LexicalCategory string
	TopicDomains    []string
	// Hints are machine translation suggestions for the lemmas.
	Hints []string
}

func (in Input) source() string {
	if in.SourceLanguage == "" {
		return "English"
	}
	return in.SourceLanguage
}

func (in Input) target() string {
	if in.TargetLanguage == "" {
		return "the target language"
	}
	return in.TargetLanguage
}

// SenseAnalysis asks for an English description of the exact sense.
func SenseAnalysis(in Input) string {
	s := in.Synset
	var b strings.Builder

	b.WriteString("Analyse the following WordNet synset to understand the exact sense before translating.\n\n")
	fmt.Fprintf(&b, "Synset ID: %s\n", orNA(s.ID))
	fmt.Fprintf(&b, "Part of speech (English WordNet tag): %s\n", posTag(s.POS))
	fmt.Fprintf(&b, "%s lemmas: %s\n", in.source(), joinOrNone(s.CleanLemmas()))
	fmt.Fprintf(&b, "Definition: %s\n", orNA(s.Definition))
	b.WriteString("Usage examples:\n")
	b.WriteString(bullets(s.CleanExamples()))
	writeMetadata(&b, in)

	b.WriteString("\nReturn a JSON object with:\n")
	b.WriteString(`- "sense_summary": concise English description (1-2 sentences) capturing the nuance of this sense.` + "\n")
	b.WriteString(`- "contrastive_note": how this sense differs from other senses of the same lemmas (string or null).` + "\n")
	b.WriteString(`- "key_features": list of 2-4 short bullet points highlighting distinguishing aspects.` + "\n")
	b.WriteString(`- "domain_tags": optional list of topical labels (or []).` + "\n")
	b.WriteString(`- "confidence": one of ["high", "medium", "low"].` + "\n\n")
	b.WriteString("Keep the analysis in English and focus on the sense, not translation.")
	return b.String()
}

// DefinitionTranslation asks for the gloss in the target language.
func DefinitionTranslation(in Input, sense schema.Payload) string {
	s := in.Synset
	tgt := in.target()
	var b strings.Builder

	fmt.Fprintf(&b, "Translate the %s definition into %s while preserving the analysed sense.\n\n", in.source(), tgt)
	b.WriteString("Original definition:\n")
	fmt.Fprintf(&b, "%q\n\n", orNA(s.Definition))
	fmt.Fprintf(&b, "%s lemmas: %s\n", in.source(), joinOrNone(s.CleanLemmas()))
	fmt.Fprintf(&b, "Sense summary: %s\n", orNA(sense.String("sense_summary")))
	b.WriteString("Key features:\n")
	b.WriteString(bullets(sense.Strings("key_features")))
	b.WriteString("Usage examples:\n")
	b.WriteString(bullets(s.CleanExamples()))

	b.WriteString("\nProduce JSON with:\n")
	fmt.Fprintf(&b, "- \"definition_translation\": the definition rewritten in %s.\n", tgt)
	b.WriteString(`- "notes": optional clarifications for lexicographers (string or null).` + "\n")
	fmt.Fprintf(&b, "- \"examples\": the usage examples translated into %s (or []).", tgt)
	return b.String()
}

// LemmaTranslation asks for one translation per source lemma, order-aligned.
func LemmaTranslation(in Input, sense, definition schema.Payload) string {
	s := in.Synset
	src, tgt := in.source(), in.target()
	var b strings.Builder

	fmt.Fprintf(&b, "Translate each %s lemma of this synset into %s, choosing the word that expresses the analysed sense.\n\n", src, tgt)
	fmt.Fprintf(&b, "%s lemmas (in order):\n", src)
	b.WriteString(numbered(s.CleanLemmas()))
	fmt.Fprintf(&b, "Part of speech: %s\n", posTag(s.POS))
	fmt.Fprintf(&b, "Sense summary: %s\n", orNA(sense.String("sense_summary")))
	fmt.Fprintf(&b, "Translated definition: %s\n", orNA(definition.String("definition_translation")))
	if len(in.Hints) > 0 {
		b.WriteString("Machine translation hints (may be wrong, use with care):\n")
		b.WriteString(bullets(in.Hints))
	}

	b.WriteString("\nReturn JSON with:\n")
	fmt.Fprintf(&b, "- \"initial_translations\": list with exactly one %s translation per lemma, in the same order; use null when a lemma has no adequate translation.\n", tgt)
	fmt.Fprintf(&b, "- \"alignment\": object mapping each %s lemma to its %s translation (or null).", src, tgt)
	return b.String()
}

// Expansion asks for synonyms not yet in candidates.
func Expansion(in Input, sense, definition schema.Payload, candidates []string, iteration int) string {
	s := in.Synset
	tgt := in.target()
	var b strings.Builder

	fmt.Fprintf(&b, "Expand the set of %s synonyms for this sense (iteration %d).\n\n", tgt, iteration)
	fmt.Fprintf(&b, "%s lemmas: %s\n", in.source(), joinOrNone(s.CleanLemmas()))
	fmt.Fprintf(&b, "Sense summary: %s\n", orNA(sense.String("sense_summary")))
	fmt.Fprintf(&b, "Translated definition: %s\n", orNA(definition.String("definition_translation")))
	fmt.Fprintf(&b, "Current %s candidates:\n", tgt)
	b.WriteString(bullets(candidates))

	fmt.Fprintf(&b, "\nPropose additional %s words or short phrases that express exactly this sense and are not already listed.\n", tgt)
	b.WriteString("Return JSON with:\n")
	fmt.Fprintf(&b, "- \"expanded_synonyms\": list of NEW %s candidates only (return [] if there are none).\n", tgt)
	b.WriteString(`- "rationale": object mapping each new candidate to a short justification.`)
	return b.String()
}

// Filtering asks the model to keep only true synonyms of the sense.
func Filtering(in Input, sense, definition schema.Payload, candidates []string) string {
	s := in.Synset
	tgt := in.target()
	var b strings.Builder

	fmt.Fprintf(&b, "Review the %s synonym candidates for this sense and keep only true synonyms.\n\n", tgt)
	fmt.Fprintf(&b, "%s lemmas: %s\n", in.source(), joinOrNone(s.CleanLemmas()))
	fmt.Fprintf(&b, "Sense summary: %s\n", orNA(sense.String("sense_summary")))
	fmt.Fprintf(&b, "Translated definition: %s\n", orNA(definition.String("definition_translation")))
	b.WriteString("Candidates:\n")
	b.WriteString(bullets(candidates))

	fmt.Fprintf(&b, "\nRemove candidates that denote a different sense, are broader or narrower, belong to another part of speech or are not idiomatic %s. Do not add new words.\n", tgt)
	b.WriteString("Return JSON with:\n")
	b.WriteString(`- "filtered_synonyms": list of the kept candidates, best first.` + "\n")
	b.WriteString(`- "confidence_by_word": object mapping each kept candidate to "high", "medium" or "low".` + "\n")
	b.WriteString(`- "removed": list of objects {"word": ..., "reason": ...} for every removed candidate.` + "\n")
	b.WriteString(`- "confidence": overall confidence, one of ["high", "medium", "low"].`)
	return b.String()
}

// DefinitionQuality asks for an audit of the translated gloss.
func DefinitionQuality(in Input, definition schema.Payload, synonyms []string) string {
	s := in.Synset
	tgt := in.target()
	var b strings.Builder

	fmt.Fprintf(&b, "Review this %s definition of a WordNet synset.\n\n", tgt)
	fmt.Fprintf(&b, "%s lemmas: %s\n", in.source(), joinOrNone(s.CleanLemmas()))
	fmt.Fprintf(&b, "%s synonyms: %s\n", tgt, joinOrNone(synonyms))
	fmt.Fprintf(&b, "Original definition: %s\n", orNA(s.Definition))
	fmt.Fprintf(&b, "Translated definition: %s\n", orNA(definition.String("definition_translation")))

	b.WriteString("\nCheck for:\n")
	b.WriteString("- circularity: the definition reuses one of the synonyms or an inflected form of them;\n")
	b.WriteString("- grammar: agreement errors in case, gender or number;\n")
	b.WriteString("- style: register or wording unusual for a dictionary definition.\n\n")
	b.WriteString("Return JSON with:\n")
	b.WriteString(`- "status": "ok" if the definition can be used as is, otherwise "needs_revision".` + "\n")
	b.WriteString(`- "issues": list of objects {"type": "circular" | "grammar" | "style", "message": ...} (or []).` + "\n")
	fmt.Fprintf(&b, "- \"revised_definition\": corrected %s definition, or null when status is \"ok\".\n", tgt)
	b.WriteString(`- "notes": optional remarks for lexicographers (string or null).`)
	return b.String()
}

func writeMetadata(b *strings.Builder, in Input) {
	if in.LexicalCategory != "" {
		fmt.Fprintf(b, "Lexical category: %s\n", in.LexicalCategory)
	}
	if len(in.TopicDomains) > 0 {
		fmt.Fprintf(b, "Topic domains: %s\n", strings.Join(in.TopicDomains, ", "))
	}
}

func posTag(pos string) string {
	if p := synset.NormalizePOS(pos); p != "" {
		return p
	}
	return "unknown"
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notAvailable
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return none
	}
	return strings.Join(items, ", ")
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- " + none + "\n"
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}

func numbered(items []string) string {
	if len(items) == 0 {
		return none + "\n"
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}
