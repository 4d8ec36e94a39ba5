package schema

import "strings"

// Stage names a pipeline step. The value is also the key under which the
// step's call is recorded and the tag sent to the model.
type Stage string

const (
	StageSenseAnalysis         Stage = "sense_analysis"
	StageDefinitionTranslation Stage = "definition_translation"
	StageLemmaTranslation      Stage = "lemma_translation"
	StageSynonymExpansion      Stage = "synonym_expansion"
	StageSynonymFiltering      Stage = "synonym_filtering"
	StageDefinitionQuality     Stage = "definition_quality"
)

// Stages lists every model-backed stage in execution order.
var Stages = []Stage{
	StageSenseAnalysis,
	StageDefinitionTranslation,
	StageLemmaTranslation,
	StageSynonymExpansion,
	StageSynonymFiltering,
	StageDefinitionQuality,
}

// Base strips an iteration suffix: "synonym_expansion#3" -> "synonym_expansion".
func (s Stage) Base() Stage {
	if i := strings.IndexByte(string(s), '#'); i >= 0 {
		return s[:i]
	}
	return s
}

var removedItem = Contract{
	Stage: "removed",
	Fields: []Field{
		{Name: "word", Kind: KindString, Required: true},
		{Name: "reason", Kind: KindString, Required: true},
	},
}

var issueItem = Contract{
	Stage: "issue",
	Fields: []Field{
		{Name: "type", Kind: KindEnum, Required: true, Enum: []string{"circular", "grammar", "style"}},
		{Name: "message", Kind: KindString, Required: true},
	},
}

var contracts = map[Stage]Contract{
	StageSenseAnalysis: {
		Stage: StageSenseAnalysis,
		Fields: []Field{
			{Name: "sense_summary", Kind: KindString, Required: true},
			{Name: "contrastive_note", Kind: KindOptString},
			{Name: "key_features", Kind: KindStrings},
			{Name: "domain_tags", Kind: KindStrings},
			{Name: "confidence", Kind: KindString, Required: true},
		},
	},
	StageDefinitionTranslation: {
		Stage: StageDefinitionTranslation,
		Fields: []Field{
			{Name: "definition_translation", Kind: KindString, Required: true},
			{Name: "notes", Kind: KindOptString},
			{Name: "examples", Kind: KindStrings},
		},
	},
	StageLemmaTranslation: {
		Stage: StageLemmaTranslation,
		Fields: []Field{
			{Name: "initial_translations", Kind: KindOptStrings, Required: true},
			{Name: "alignment", Kind: KindOptStringMap},
		},
	},
	StageSynonymExpansion: {
		Stage: StageSynonymExpansion,
		Fields: []Field{
			{Name: "expanded_synonyms", Kind: KindStrings, Required: true, EmptyAnswers: true},
			{Name: "rationale", Kind: KindStringMap},
		},
	},
	StageSynonymFiltering: {
		Stage: StageSynonymFiltering,
		Fields: []Field{
			{Name: "filtered_synonyms", Kind: KindStrings, Required: true},
			{Name: "confidence_by_word", Kind: KindMap},
			{Name: "removed", Kind: KindObjects, Item: &removedItem},
			{Name: "confidence", Kind: KindString, Required: true},
		},
	},
	StageDefinitionQuality: {
		Stage: StageDefinitionQuality,
		Fields: []Field{
			{Name: "status", Kind: KindEnum, Required: true, Enum: []string{StatusOK, StatusNeedsRevision}},
			{Name: "issues", Kind: KindObjects, Item: &issueItem},
			{Name: "revised_definition", Kind: KindOptString},
			{Name: "notes", Kind: KindOptString},
		},
	},
}

// Definition-quality review statuses.
const (
	StatusOK            = "ok"
	StatusNeedsRevision = "needs_revision"
)

// For returns the contract of a stage; iteration suffixes are ignored.
func For(stage Stage) (Contract, bool) {
	c, ok := contracts[stage.Base()]
	return c, ok
}

// MustFor is For for the built-in stages. It panics on an unknown stage,
// which is a programming error.
func MustFor(stage Stage) Contract {
	c, ok := For(stage)
	if !ok {
		panic("schema: no contract for stage " + string(stage))
	}
	return c
}
