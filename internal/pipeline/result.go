package pipeline

import (
	"github.com/valpere/synsetran/internal/expansion"
	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/langcheck"
	"github.com/valpere/synsetran/internal/lexicon"
	"github.com/valpere/synsetran/internal/schema"
	"github.com/valpere/synsetran/internal/synset"
)

// Result statuses. The values match the run statuses of the store.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusSkipped  = "skipped"
)

// Where the final definition came from.
const (
	DefinitionFromTranslation = "definition_translation"
	DefinitionFromReview      = "definition_quality"
)

// previewLimit caps raw responses in call summaries.
const previewLimit = 600

// Result is the outcome of translating one synset. It is never mutated after
// TranslateSynset returns.
type Result struct {
	SynsetID              string        `json:"synset_id"`
	Translation           string        `json:"translation"`
	DefinitionTranslation string        `json:"definition_translation"`
	TranslatedSynonyms    []string      `json:"translated_synonyms"`
	Examples              []string      `json:"examples"`
	Notes                 string        `json:"notes,omitempty"`
	SourceLang            string        `json:"source_lang"`
	TargetLang            string        `json:"target_lang"`
	Source                synset.Synset `json:"source"`
	CuratorSummary        string        `json:"curator_summary"`
	Payload               Audit         `json:"payload"`
}

// Audit is the full trail of a run.
type Audit struct {
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	// Calls holds every stage call in execution order; rejected attempts are
	// nested in each call.
	Calls []invoke.StageCall `json:"calls"`
	// Payloads maps a stage key to its validated payload.
	Payloads map[schema.Stage]schema.Payload `json:"payloads"`
	// FailedStages lists the stage keys that ended with the sentinel.
	FailedStages []schema.Stage `json:"failed_stages,omitempty"`

	Expansion *expansion.Record `json:"expansion,omitempty"`
	Removed   []Removal         `json:"removed"`
	// Invented lists filtered words that were not among the candidates.
	Invented []string `json:"invented,omitempty"`
	// DroppedCompounds lists multi-word synonyms removed because one of their
	// words is itself a synonym.
	DroppedCompounds []string `json:"dropped_compounds,omitempty"`

	DefinitionSource string             `json:"definition_source,omitempty"`
	Metadata         *lexicon.Metadata  `json:"metadata,omitempty"`
	Hints            []string           `json:"hints,omitempty"`
	LanguageCheck    *langcheck.Verdict `json:"language_check,omitempty"`

	Logs []CallSummary `json:"logs"`
}

// Removal is a candidate the filtering stage rejected.
type Removal struct {
	Word   string `json:"word"`
	Reason string `json:"reason"`
}

// CallSummary is a compact view of a stage call with a truncated response.
type CallSummary struct {
	Stage              schema.Stage `json:"stage"`
	Attempt            int          `json:"attempt"`
	Rejected           int          `json:"rejected_attempts"`
	Prompt             string       `json:"prompt"`
	SystemPrompt       string       `json:"system_prompt"`
	RawResponsePreview string       `json:"raw_response_preview"`
	Error              string       `json:"error,omitempty"`
}

// Status reports whether the run was skipped, hit a failed stage, or
// completed every stage.
func (r *Result) Status() string {
	switch {
	case r.Payload.Skipped:
		return StatusSkipped
	case len(r.Payload.FailedStages) > 0:
		return StatusPartial
	default:
		return StatusComplete
	}
}

func summarize(call invoke.StageCall) CallSummary {
	return CallSummary{
		Stage:              call.Stage,
		Attempt:            call.Attempt,
		Rejected:           len(call.Rejected),
		Prompt:             call.Prompt,
		SystemPrompt:       call.SystemPrompt,
		RawResponsePreview: preview(call.RawResponse),
		Error:              call.Error,
	}
}

func preview(raw string) string {
	r := []rune(raw)
	if len(r) <= previewLimit {
		return raw
	}
	return string(r[:previewLimit]) + "… [truncated]"
}
