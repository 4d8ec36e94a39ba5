package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/langcheck"
	"github.com/valpere/synsetran/internal/lexicon"
	"github.com/valpere/synsetran/internal/llm"
	"github.com/valpere/synsetran/internal/schema"
	"github.com/valpere/synsetran/internal/synset"
)

// stub answers every stage with a fixed reply. Stages without a reply get
// prose, which never passes validation.
type stub struct {
	replies map[schema.Stage]string
	calls   atomic.Int32
}

func (s *stub) Invoke(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	s.calls.Add(1)
	if reply, ok := s.replies[stageOf(messages)]; ok {
		return &llm.Response{Fragments: []string{reply}, Model: "stub"}, nil
	}
	return &llm.Response{Fragments: []string{"Sorry, I cannot help with that."}, Model: "stub"}, nil
}

func stageOf(messages []llm.Message) schema.Stage {
	for _, st := range schema.Stages {
		if strings.Contains(messages[0].Content, "Current stage: "+string(st)+".") {
			return st
		}
	}
	return ""
}

func happyReplies() map[schema.Stage]string {
	return map[schema.Stage]string{
		schema.StageSenseAnalysis: `<think>an industrial building</think>{"sense_summary": "industrial plant", "confidence": "high"}`,
		schema.StageDefinitionTranslation: "```json\n" + `{"definition_translation": "zgrada za industrijsku proizvodnju",
			"notes": "tehnički termin",
			"examples": ["Fabrika radi danonoćno.", "Fabrika radi danonoćno."]}` + "\n```",
		schema.StageLemmaTranslation: `{"initial_translations": ["fabrika", null, "postrojenje"], "alignment": {"plant": "fabrika"}}`,
		schema.StageSynonymExpansion: `{"expanded_synonyms": ["Fabrika", "pogon", "industrijski pogon"], "rationale": {"pogon": "common"}}`,
		schema.StageSynonymFiltering: `{"filtered_synonyms": ["fabrika", "pogon", "industrijski pogon", "postrojenje", "pogon", "tvornica"],
			"removed": [{"word": "industrijsko postrojenje", "reason": "narrower"}], "confidence": "high"}`,
		schema.StageDefinitionQuality: `{"status": "ok", "issues": [], "revised_definition": null, "notes": "bez primedbi"}`,
	}
}

func plant() synset.Synset {
	return synset.Synset{
		ID:         "ENG30-03956922-n",
		POS:        "n",
		Lemmas:     []string{"plant", "works", "industrial plant"},
		Definition: "buildings for carrying on industrial labor",
		Examples:   []string{"they built a large plant to manufacture automobiles"},
	}
}

func newOrchestrator(backend llm.Backend, logger *zap.Logger, opts ...Option) *Orchestrator {
	return New(invoke.New(backend, logger), DefaultConfig("sr"), logger, opts...)
}

func TestTranslateSynset_HappyPath(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	backend := &stub{replies: happyReplies()}
	o := newOrchestrator(backend, zap.New(core))

	r := o.TranslateSynset(context.Background(), plant())

	assert.Equal(t, []string{"fabrika", "pogon", "postrojenje"}, r.TranslatedSynonyms)
	assert.Equal(t, "fabrika", r.Translation)
	assert.Equal(t, "zgrada za industrijsku proizvodnju", r.DefinitionTranslation)
	assert.Equal(t, []string{"Fabrika radi danonoćno."}, r.Examples)
	assert.Equal(t, "tehnički termin", r.Notes)
	assert.Equal(t, "sr", r.TargetLang)
	assert.Equal(t, "en", r.SourceLang)
	assert.Equal(t, StatusComplete, r.Status())

	// sense, definition, lemmas, 2 expansion iterations, filtering, review
	assert.Equal(t, int32(7), backend.calls.Load())
	audit := r.Payload
	require.Len(t, audit.Calls, 7)
	wantOrder := []schema.Stage{
		schema.StageSenseAnalysis,
		schema.StageDefinitionTranslation,
		schema.StageLemmaTranslation,
		"synonym_expansion#1",
		"synonym_expansion#2",
		schema.StageSynonymFiltering,
		schema.StageDefinitionQuality,
	}
	for i, want := range wantOrder {
		assert.Equal(t, want, audit.Calls[i].Stage)
		assert.Equal(t, want, audit.Logs[i].Stage)
		assert.Contains(t, audit.Payloads, want)
	}
	assert.Empty(t, audit.FailedStages)

	require.NotNil(t, audit.Expansion)
	assert.True(t, audit.Expansion.Converged)
	assert.Equal(t, 2, audit.Expansion.IterationsRun)
	assert.Equal(t, []string{"fabrika", "postrojenje", "pogon", "industrijski pogon"}, audit.Expansion.ExpandedSynonyms)
	assert.Equal(t, 0, audit.Expansion.Provenance["fabrika"])
	assert.Equal(t, 1, audit.Expansion.Provenance["pogon"])

	assert.Equal(t, []string{"tvornica"}, audit.Invented)
	assert.Equal(t, []string{"industrijski pogon"}, audit.DroppedCompounds)
	assert.Equal(t, []Removal{{Word: "industrijsko postrojenje", Reason: "narrower"}}, audit.Removed)
	assert.Equal(t, DefinitionFromTranslation, audit.DefinitionSource)

	// Every translated synonym was a candidate.
	for _, w := range r.TranslatedSynonyms {
		assert.Contains(t, audit.Expansion.ExpandedSynonyms, w)
	}

	assert.Equal(t, 1, logs.FilterMessage("filtering returned a word that was never a candidate").Len())
	assert.Equal(t, 1, logs.FilterMessage("dropped redundant compound").Len())

	assert.Contains(t, r.CuratorSummary, "Headword (sr): fabrika")
	assert.Contains(t, r.CuratorSummary, "  “Fabrika radi danonoćno.”")
	assert.Contains(t, r.CuratorSummary, "Notes: tehnički termin")
}

func TestTranslateSynset_SynonymsFollowFiltering(t *testing.T) {
	tests := []struct {
		name        string
		synset      synset.Synset
		lemmas      string
		expansion   string
		filtering   string
		want        []string
		translation string
	}{
		{
			name:        "entity",
			synset:      synset.Synset{ID: "X-1-n", POS: "n", Lemmas: []string{"entity"}, Definition: "that which is perceived to have its own distinct existence"},
			lemmas:      `{"initial_translations": ["entitet"]}`,
			expansion:   `{"expanded_synonyms": ["biće", "entitet"]}`,
			filtering:   `{"filtered_synonyms": ["biće", "entitet", "Biće"], "confidence": "high"}`,
			want:        []string{"biće", "entitet"},
			translation: "biće",
		},
		{
			name:        "plant",
			synset:      plant(),
			lemmas:      `{"initial_translations": ["fabrika", "postrojenje"]}`,
			expansion:   `{"expanded_synonyms": ["pogon"]}`,
			filtering:   `{"filtered_synonyms": ["pogon", "fabrika"], "confidence": "medium"}`,
			want:        []string{"pogon", "fabrika"},
			translation: "pogon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := happyReplies()
			replies[schema.StageLemmaTranslation] = tt.lemmas
			replies[schema.StageSynonymExpansion] = tt.expansion
			replies[schema.StageSynonymFiltering] = tt.filtering

			r := newOrchestrator(&stub{replies: replies}, nil).TranslateSynset(context.Background(), tt.synset)

			assert.Equal(t, StatusComplete, r.Status())
			assert.Equal(t, tt.synset.ID, r.SynsetID)
			assert.Equal(t, tt.want, r.TranslatedSynonyms)
			assert.Equal(t, tt.translation, r.Translation)
		})
	}
}

func TestTranslateSynset_EmptyExpansionConverges(t *testing.T) {
	replies := happyReplies()
	replies[schema.StageSynonymExpansion] = `{"expanded_synonyms": [], "rationale": {}}`
	replies[schema.StageSynonymFiltering] = `{"filtered_synonyms": ["fabrika", "postrojenje"], "confidence": "high"}`
	backend := &stub{replies: replies}

	r := newOrchestrator(backend, nil).TranslateSynset(context.Background(), plant())

	// sense, definition, lemmas, one expansion iteration, filtering, review
	assert.Equal(t, int32(6), backend.calls.Load())
	assert.Equal(t, StatusComplete, r.Status())
	assert.Empty(t, r.Payload.FailedStages)
	require.NotNil(t, r.Payload.Expansion)
	assert.Equal(t, 1, r.Payload.Expansion.IterationsRun)
	assert.True(t, r.Payload.Expansion.Converged)
	assert.Equal(t, []string{"fabrika", "postrojenje"}, r.Payload.Expansion.ExpandedSynonyms)
	assert.Empty(t, r.Payload.Calls[3].Rejected)
	assert.Equal(t, []string{"fabrika", "postrojenje"}, r.TranslatedSynonyms)
}

func TestTranslateSynset_ExhaustedStage(t *testing.T) {
	replies := happyReplies()
	delete(replies, schema.StageDefinitionTranslation)
	replies[schema.StageDefinitionQuality] = `{"status": "ok", "revised_definition": "zgrade za industrijski rad"}`

	backend := &stub{replies: replies}
	o := newOrchestrator(backend, nil)

	r := o.TranslateSynset(context.Background(), plant())

	assert.Equal(t, StatusPartial, r.Status())
	assert.Equal(t, []schema.Stage{schema.StageDefinitionTranslation}, r.Payload.FailedStages)
	// 3 attempts for the failed stage plus 6 accepted calls.
	assert.Equal(t, int32(9), backend.calls.Load())

	failed := r.Payload.Calls[1]
	assert.True(t, failed.Failed())
	assert.Len(t, failed.Rejected, 3)
	assert.Equal(t, schema.SentinelMessage, failed.Payload["error"])

	// The empty primary definition lets the reviewed one through.
	assert.Equal(t, "zgrade za industrijski rad", r.DefinitionTranslation)
	assert.Equal(t, DefinitionFromReview, r.Payload.DefinitionSource)
	assert.Empty(t, r.Examples)
	assert.Empty(t, r.Notes)
	assert.Equal(t, []string{"fabrika", "pogon", "postrojenje"}, r.TranslatedSynonyms)
}

func TestTranslateSynset_EveryStageFails(t *testing.T) {
	backend := &stub{}
	o := newOrchestrator(backend, nil)

	r := o.TranslateSynset(context.Background(), plant())

	assert.Equal(t, StatusPartial, r.Status())
	assert.Empty(t, r.Translation)
	assert.Empty(t, r.TranslatedSynonyms)
	assert.Empty(t, r.DefinitionTranslation)
	// Expansion stops after its first failed iteration.
	assert.Equal(t, 1, r.Payload.Expansion.IterationsRun)
	assert.False(t, r.Payload.Expansion.Converged)
	assert.Equal(t, int32(6*3), backend.calls.Load())
	assert.LessOrEqual(t, int(backend.calls.Load()), o.CallBudget())
	assert.Contains(t, r.CuratorSummary, "Synonym candidates: (none returned)")
}

func TestTranslateSynset_EmptySynset(t *testing.T) {
	backend := &stub{replies: happyReplies()}
	o := newOrchestrator(backend, nil)

	r := o.TranslateSynset(context.Background(), synset.Synset{ID: "1", Lemmas: []string{" "}})

	assert.Zero(t, backend.calls.Load())
	assert.True(t, r.Payload.Skipped)
	assert.Equal(t, StatusSkipped, r.Status())
	assert.Empty(t, r.Translation)
	assert.NotNil(t, r.TranslatedSynonyms)
	assert.Empty(t, r.Payload.Calls)
}

func TestTranslateSynset_CallBudget(t *testing.T) {
	// Expansion never converges: every reply carries a fresh word.
	var n atomic.Int32
	replies := happyReplies()
	backend := llm.BackendFunc(func(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
		n.Add(1)
		st := stageOf(messages)
		if st == schema.StageSynonymExpansion {
			return &llm.Response{Fragments: []string{`{"expanded_synonyms": ["rec` + string(rune('a'+n.Load())) + `"]}`}}, nil
		}
		return &llm.Response{Fragments: []string{replies[st]}}, nil
	})

	o := newOrchestrator(backend, nil)
	r := o.TranslateSynset(context.Background(), plant())

	assert.Equal(t, 30, o.CallBudget())
	assert.Equal(t, 5, r.Payload.Expansion.IterationsRun)
	assert.False(t, r.Payload.Expansion.Converged)
	assert.Equal(t, int32(10), n.Load())
	assert.LessOrEqual(t, int(n.Load()), o.CallBudget())

	sizes := r.Payload.Expansion.Sizes
	for i := 1; i < len(sizes); i++ {
		assert.GreaterOrEqual(t, sizes[i], sizes[i-1])
	}
}

type fakeHints struct{ err error }

func (f fakeHints) Suggest(_ context.Context, words []string, _, _ string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{words[0] + " → biljka"}, nil
}

type fakeChecker struct{}

func (fakeChecker) Check(text, target string) langcheck.Verdict {
	return langcheck.Verdict{Checked: true, Expected: target, Detected: "hr", Matches: false, Reason: "expected sr but detected hr"}
}

func TestTranslateSynset_Collaborators(t *testing.T) {
	meta := lexicon.ProviderFunc(func(_ context.Context, id string) (lexicon.Metadata, error) {
		return lexicon.Metadata{ID: id, LexicalCategory: "noun.artifact", TopicDomains: []string{"industry"}}, nil
	})

	o := newOrchestrator(&stub{replies: happyReplies()}, nil,
		WithLexicon(meta),
		WithHints(fakeHints{}),
		WithLanguageCheck(fakeChecker{}),
	)
	r := o.TranslateSynset(context.Background(), plant())

	sense := r.Payload.Calls[0]
	assert.Contains(t, sense.Prompt, "Lexical category: noun.artifact\nTopic domains: industry\n")
	lemmas := r.Payload.Calls[2]
	assert.Contains(t, lemmas.Prompt, "- plant → biljka\n")
	assert.Contains(t, lemmas.Prompt, "into Serbian")

	require.NotNil(t, r.Payload.Metadata)
	assert.Equal(t, []string{"plant → biljka"}, r.Payload.Hints)
	require.NotNil(t, r.Payload.LanguageCheck)
	assert.False(t, r.Payload.LanguageCheck.Matches)
	// A failed check never changes the result.
	assert.Equal(t, "zgrada za industrijsku proizvodnju", r.DefinitionTranslation)
	assert.Contains(t, r.CuratorSummary, "Lexical category: noun.artifact\nTopic domains: industry\n")
}

func TestTranslateSynset_CollaboratorFailuresIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	meta := lexicon.ProviderFunc(func(context.Context, string) (lexicon.Metadata, error) {
		return lexicon.Metadata{}, errors.New("db locked")
	})

	o := newOrchestrator(&stub{replies: happyReplies()}, zap.New(core),
		WithLexicon(meta),
		WithHints(fakeHints{err: errors.New("quota")}),
	)
	r := o.TranslateSynset(context.Background(), plant())

	assert.Equal(t, StatusComplete, r.Status())
	assert.Nil(t, r.Payload.Metadata)
	assert.Empty(t, r.Payload.Hints)
	assert.Equal(t, 1, logs.FilterMessage("lexical metadata lookup failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("translation hints unavailable").Len())
}

func TestResolveDefinition(t *testing.T) {
	tests := []struct {
		name       string
		definition schema.Payload
		review     schema.Payload
		want       string
		wantSource string
	}{
		{
			name:       "ok keeps original",
			definition: schema.Payload{"definition_translation": "original"},
			review:     schema.Payload{"status": "ok", "revised_definition": "revised"},
			want:       "original",
			wantSource: DefinitionFromTranslation,
		},
		{
			name:       "needs revision adopts revised",
			definition: schema.Payload{"definition_translation": "original"},
			review:     schema.Payload{"status": "needs_revision", "revised_definition": "revised"},
			want:       "revised",
			wantSource: DefinitionFromReview,
		},
		{
			name:       "needs revision without revision keeps original",
			definition: schema.Payload{"definition_translation": "original"},
			review:     schema.Payload{"status": "needs_revision", "revised_definition": nil},
			want:       "original",
			wantSource: DefinitionFromTranslation,
		},
		{
			name:       "empty original adopts revised",
			definition: schema.Sentinel(),
			review:     schema.Payload{"status": "ok", "revised_definition": "revised"},
			want:       "revised",
			wantSource: DefinitionFromReview,
		},
		{
			name:       "no review",
			definition: schema.Payload{"definition_translation": "original"},
			review:     nil,
			want:       "original",
			wantSource: DefinitionFromTranslation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := resolveDefinition(tt.definition, tt.review)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestSummary_Render(t *testing.T) {
	s := summary{
		targetLang:  "sr",
		translation: "a",
		definition:  "def",
		synonyms:    []string{"a", "b", "c", "d", "e", "f", "g"},
		examples:    []string{"first", "second"},
	}

	want := "Headword (sr): a\n" +
		"Definition translation: def\n" +
		"Synonym candidates:\n" +
		"  • a\n  • b\n  • c\n  • d\n  • e\n" +
		"  (+2 more candidates)\n" +
		"Example sentences: 2 (showing first)\n" +
		"  “first”"
	assert.Equal(t, want, s.render())

	empty := summary{targetLang: "sr"}.render()
	assert.Equal(t, "Headword (sr): —\nDefinition translation: —\nSynonym candidates: (none returned)\nExample sentences: none", empty)
}

func TestState_PutNeverOverwrites(t *testing.T) {
	s := NewState()
	first := invoke.StageCall{Stage: schema.StageSenseAnalysis, Prompt: "first"}
	require.NoError(t, s.Put(first))

	err := s.Put(invoke.StageCall{Stage: schema.StageSenseAnalysis, Prompt: "second"})
	assert.ErrorIs(t, err, ErrStageRecorded)

	got, ok := s.Get(schema.StageSenseAnalysis)
	require.True(t, ok)
	assert.Equal(t, "first", got.Prompt)
	assert.Equal(t, 1, s.Len())
}

func TestPreview(t *testing.T) {
	short := strings.Repeat("ж", previewLimit)
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("ж", previewLimit+10)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "… [truncated]"))
	assert.Equal(t, previewLimit, len([]rune(strings.TrimSuffix(got, "… [truncated]"))))
}

func TestRestrictTo(t *testing.T) {
	kept, invented := restrictTo([]string{"Metla", "četka", "nova"}, []string{"metla", "četka"})
	assert.Equal(t, []string{"Metla", "četka"}, kept)
	assert.Equal(t, []string{"nova"}, invented)
}

func TestBatch(t *testing.T) {
	synsets := []synset.Synset{plant(), {ID: "empty"}, plant()}
	synsets[2].ID = "third"

	t.Run("sequential", func(t *testing.T) {
		o := newOrchestrator(&stub{replies: happyReplies()}, nil)
		results := o.Translate(context.Background(), synsets)
		require.Len(t, results, 3)
		assert.Equal(t, StatusSkipped, results[1].Status())
	})

	t.Run("parallel keeps input order", func(t *testing.T) {
		o := newOrchestrator(&stub{replies: happyReplies()}, nil)
		results, err := o.TranslateParallel(context.Background(), synsets, 2)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			require.NotNil(t, r)
			assert.Equal(t, synsets[i].ID, r.SynsetID)
		}
		assert.Equal(t, "fabrika", results[2].Translation)
	})

	t.Run("stream", func(t *testing.T) {
		o := newOrchestrator(&stub{replies: happyReplies()}, nil)
		in := make(chan synset.Synset)
		go func() {
			defer close(in)
			for _, s := range synsets {
				in <- s
			}
		}()

		var ids []string
		for r := range o.Stream(context.Background(), in) {
			ids = append(ids, r.SynsetID)
		}
		assert.Equal(t, []string{"ENG30-03956922-n", "empty", "third"}, ids)
	})

	t.Run("cancelled", func(t *testing.T) {
		o := newOrchestrator(&stub{replies: happyReplies()}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		results, err := o.TranslateParallel(ctx, synsets, 2)
		assert.Error(t, err)
		assert.Len(t, results, 3)
		assert.Empty(t, o.Translate(ctx, synsets))
	})
}
