// Package pipeline runs the staged synset translation: sense analysis,
// definition translation, lemma translation, iterative synonym expansion,
// synonym filtering, an optional definition review and final assembly.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/dedup"
	"github.com/valpere/synsetran/internal/expansion"
	"github.com/valpere/synsetran/internal/hint"
	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/langcheck"
	"github.com/valpere/synsetran/internal/lexicon"
	"github.com/valpere/synsetran/internal/prompt"
	"github.com/valpere/synsetran/internal/schema"
	"github.com/valpere/synsetran/internal/synset"
)

// Invoker runs one stage call with retries. *invoke.Service implements it.
type Invoker interface {
	Call(ctx context.Context, prompt string, stage schema.Stage) invoke.StageCall
	MaxAttempts() int
}

// LanguageChecker verifies the language of the final definition.
// *langcheck.Checker implements it.
type LanguageChecker interface {
	Check(text, targetLang string) langcheck.Verdict
}

type Config struct {
	SourceLang             string
	TargetLang             string
	MaxExpansionIterations int
	ReviewDefinition       bool
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig(targetLang string) Config {
	return Config{
		SourceLang:             "en",
		TargetLang:             targetLang,
		MaxExpansionIterations: expansion.DefaultMaxIterations,
		ReviewDefinition:       true,
	}
}

type Option func(*Orchestrator)

// WithLexicon enriches prompts and summaries with lexical metadata.
func WithLexicon(p lexicon.Provider) Option {
	return func(o *Orchestrator) { o.lexicon = p }
}

// WithHints adds machine translation suggestions to the lemma prompt.
func WithHints(p hint.Provider) Option {
	return func(o *Orchestrator) { o.hints = p }
}

// WithLanguageCheck records a language check of the final definition.
func WithLanguageCheck(c LanguageChecker) Option {
	return func(o *Orchestrator) { o.langcheck = c }
}

// Orchestrator holds only immutable dependencies; it is safe for concurrent
// use when its collaborators are.
type Orchestrator struct {
	invoker   Invoker
	expander  *expansion.Controller
	config    Config
	logger    *zap.Logger
	lexicon   lexicon.Provider
	hints     hint.Provider
	langcheck LanguageChecker
}

func New(invoker Invoker, config Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SourceLang == "" {
		config.SourceLang = "en"
	}
	if config.MaxExpansionIterations <= 0 {
		config.MaxExpansionIterations = expansion.DefaultMaxIterations
	}
	o := &Orchestrator{
		invoker:  invoker,
		expander: expansion.New(invoker, config.MaxExpansionIterations, logger),
		config:   config,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective settings.
func (o *Orchestrator) Config() Config {
	return o.config
}

// CallBudget is the worst-case number of backend calls for one synset.
func (o *Orchestrator) CallBudget() int {
	stages := 4 // sense, definition, lemmas, filtering
	if o.config.ReviewDefinition {
		stages++
	}
	return (stages + o.config.MaxExpansionIterations) * o.invoker.MaxAttempts()
}

// TranslateSynset runs every stage for s. It always returns a result; stage
// failures leave empty data behind and are listed in Payload.FailedStages.
func (o *Orchestrator) TranslateSynset(ctx context.Context, s synset.Synset) *Result {
	logger := o.logger.With(zap.String("synset", s.ID))

	if !s.Translatable() {
		logger.Info("skipping synset without lemmas or definition")
		return o.skipped(s, "synset has neither lemmas nor definition")
	}

	r := &run{
		o:      o,
		ctx:    ctx,
		logger: logger,
		state:  NewState(),
		audit:  Audit{Payloads: map[schema.Stage]schema.Payload{}},
	}
	r.in = o.input(ctx, s, &r.audit, logger)

	sense := r.stage(schema.StageSenseAnalysis, prompt.SenseAnalysis(r.in))
	definition := r.stage(schema.StageDefinitionTranslation, prompt.DefinitionTranslation(r.in, sense))
	lemmas := r.stage(schema.StageLemmaTranslation, prompt.LemmaTranslation(r.in, sense, definition))

	record, calls := o.expander.Run(ctx, lemmas.Strings("initial_translations"), func(candidates []string, iteration int) string {
		return prompt.Expansion(r.in, sense, definition, candidates, iteration)
	})
	for _, call := range calls {
		r.record(call)
	}
	r.audit.Expansion = &record

	filtering := r.stage(schema.StageSynonymFiltering, prompt.Filtering(r.in, sense, definition, record.ExpandedSynonyms))
	filtered, invented := restrictTo(filtering.Strings("filtered_synonyms"), record.ExpandedSynonyms)
	for _, w := range invented {
		logger.Warn("filtering returned a word that was never a candidate", zap.String("word", w))
	}
	r.audit.Invented = invented
	r.audit.Removed = removals(filtering)

	var review schema.Payload
	if o.config.ReviewDefinition {
		review = r.stage(schema.StageDefinitionQuality, prompt.DefinitionQuality(r.in, definition, filtered))
	}

	return r.assemble(s, definition, review, filtered)
}

// run carries the mutable state of one TranslateSynset call.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	logger *zap.Logger
	in     prompt.Input
	state  *State
	audit  Audit
}

func (r *run) stage(stage schema.Stage, p string) schema.Payload {
	call := r.o.invoker.Call(r.ctx, p, stage)
	r.record(call)
	return call.Payload
}

func (r *run) record(call invoke.StageCall) {
	if err := r.state.Put(call); err != nil {
		r.logger.Error("stage call not recorded", zap.Error(err))
		return
	}
	r.audit.Payloads[call.Stage] = call.Payload
	if call.Failed() {
		r.audit.FailedStages = append(r.audit.FailedStages, call.Stage)
	}
}

// input gathers the prompt context, consulting the optional collaborators.
// Their failures are logged and otherwise ignored.
func (o *Orchestrator) input(ctx context.Context, s synset.Synset, audit *Audit, logger *zap.Logger) prompt.Input {
	in := prompt.Input{
		Synset:         s,
		SourceLanguage: prompt.LanguageName(o.config.SourceLang),
		TargetLanguage: prompt.LanguageName(o.config.TargetLang),
	}

	if o.lexicon != nil && s.ID != "" {
		meta, err := o.lexicon.Lookup(ctx, s.ID)
		switch {
		case errors.Is(err, lexicon.ErrNotFound):
			logger.Debug("no lexical metadata")
		case err != nil:
			logger.Warn("lexical metadata lookup failed", zap.Error(err))
		default:
			in.LexicalCategory = meta.LexicalCategory
			in.TopicDomains = meta.TopicDomains
			audit.Metadata = &meta
		}
	}

	if o.hints != nil {
		hints, err := o.hints.Suggest(ctx, s.CleanLemmas(), o.config.SourceLang, o.config.TargetLang)
		if err != nil {
			logger.Warn("translation hints unavailable", zap.Error(err))
		} else {
			in.Hints = hints
			audit.Hints = hints
		}
	}
	return in
}

func (o *Orchestrator) skipped(s synset.Synset, reason string) *Result {
	return &Result{
		SynsetID:           s.ID,
		TranslatedSynonyms: []string{},
		Examples:           []string{},
		SourceLang:         o.config.SourceLang,
		TargetLang:         o.config.TargetLang,
		Source:             s,
		CuratorSummary:     summary{targetLang: o.config.TargetLang}.render(),
		Payload: Audit{
			Skipped:    true,
			SkipReason: reason,
			Calls:      []invoke.StageCall{},
			Payloads:   map[schema.Stage]schema.Payload{},
			Removed:    []Removal{},
			Logs:       []CallSummary{},
		},
	}
}

// restrictTo keeps the words of filtered that are candidates, compared
// case-insensitively, and returns the others separately.
func restrictTo(filtered, candidates []string) (kept, invented []string) {
	allowed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		allowed[dedup.Key(c)] = struct{}{}
	}
	kept = []string{}
	for _, w := range filtered {
		if _, ok := allowed[dedup.Key(w)]; ok {
			kept = append(kept, w)
			continue
		}
		invented = append(invented, w)
	}
	return kept, invented
}

func removals(filtering schema.Payload) []Removal {
	out := []Removal{}
	for _, item := range filtering.Objects("removed") {
		word, _ := item["word"].(string)
		reason, _ := item["reason"].(string)
		if word = strings.TrimSpace(word); word == "" {
			continue
		}
		out = append(out, Removal{Word: word, Reason: strings.TrimSpace(reason)})
	}
	return out
}
