package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func TestValidate_ValidPayloadPassesThrough(t *testing.T) {
	logger, logs := observed()

	in := map[string]any{
		"sense_summary":    "a cleaning implement",
		"contrastive_note": nil,
		"key_features":     []any{"handle", "bristles"},
		"domain_tags":      []any{},
		"confidence":       "high",
		"extra":            "dropped",
	}
	got := Validate(in, MustFor(StageSenseAnalysis), logger)

	assert.Equal(t, Payload{
		"sense_summary":    "a cleaning implement",
		"contrastive_note": nil,
		"key_features":     []string{"handle", "bristles"},
		"domain_tags":      []string{},
		"confidence":       "high",
	}, got)
	assert.Zero(t, logs.Len(), "valid payload must not warn")
}

func TestValidate_RepairsAndWarns(t *testing.T) {
	logger, logs := observed()

	in := map[string]any{
		"definition_translation": 42,
		"examples":               []any{"Metla je u uglu."},
	}
	got := Validate(in, MustFor(StageDefinitionTranslation), logger)

	assert.Equal(t, Payload{
		"definition_translation": "",
		"notes":                  nil,
		"examples":               []string{"Metla je u uglu."},
	}, got)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "payload failed schema validation", entry.Message)
	assert.Equal(t, "definition_translation", entry.ContextMap()["stage"])
}

func TestValidate_EveryRequiredFieldForAnyInput(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"free_text": "I refuse"},
		{"error": "max retries exceeded"},
		{"expanded_synonyms": "not a list", "status": 7, "issues": "bad"},
		{"initial_translations": []any{1, 2}, "filtered_synonyms": []any{nil}},
	}

	for _, stage := range Stages {
		c := MustFor(stage)
		for _, in := range inputs {
			got := Validate(in, c, nil)
			assert.Len(t, got, len(c.Fields), "stage %s", stage)
			for _, name := range c.Required() {
				assert.Contains(t, got, name, "stage %s", stage)
			}
		}
	}
}

func TestValidate_Kinds(t *testing.T) {
	t.Run("optional string list keeps nulls", func(t *testing.T) {
		got := Validate(map[string]any{
			"initial_translations": []any{"metla", nil, "četka"},
			"alignment":            map[string]any{"broom": "metla", "besom": nil},
		}, MustFor(StageLemmaTranslation), nil)

		assert.Equal(t, []any{"metla", nil, "četka"}, got["initial_translations"])
		assert.Equal(t, map[string]any{"broom": "metla", "besom": nil}, got["alignment"])
	})

	t.Run("enum is normalized", func(t *testing.T) {
		got := Validate(map[string]any{"status": "  Needs_Revision "}, MustFor(StageDefinitionQuality), nil)
		assert.Equal(t, StatusNeedsRevision, got["status"])
	})

	t.Run("unknown enum value falls back", func(t *testing.T) {
		logger, logs := observed()
		got := Validate(map[string]any{"status": "perfect"}, MustFor(StageDefinitionQuality), logger)
		assert.Equal(t, "", got["status"])
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("object list items validated", func(t *testing.T) {
		got := Validate(map[string]any{
			"filtered_synonyms": []any{"metla"},
			"removed":           []any{map[string]any{"word": "četka", "reason": "different object", "x": 1}},
			"confidence":        "medium",
		}, MustFor(StageSynonymFiltering), nil)

		assert.Equal(t, []map[string]any{{"word": "četka", "reason": "different object"}}, got["removed"])
	})

	t.Run("object list with scalar item is mistyped", func(t *testing.T) {
		got := Validate(map[string]any{
			"status": "ok",
			"issues": []any{"circular"},
		}, MustFor(StageDefinitionQuality), nil)
		assert.Equal(t, []map[string]any{}, got["issues"])
	})

	t.Run("mixed string list is mistyped", func(t *testing.T) {
		got := Validate(map[string]any{"expanded_synonyms": []any{"metla", 3}}, MustFor(StageSynonymExpansion), nil)
		assert.Equal(t, []string{}, got["expanded_synonyms"])
	})
}

func TestContract_NonDefault(t *testing.T) {
	c := MustFor(StageDefinitionQuality)

	assert.False(t, c.NonDefault(c.Defaults()))
	assert.False(t, c.NonDefault(Validate(map[string]any{"free_text": "x"}, c, nil)))
	assert.True(t, c.NonDefault(Validate(map[string]any{"status": "ok"}, c, nil)))

	exp := MustFor(StageSynonymExpansion)
	assert.False(t, exp.NonDefault(Validate(map[string]any{"expanded_synonyms": []any{}}, exp, nil)))
	assert.True(t, exp.NonDefault(Validate(map[string]any{"expanded_synonyms": []any{"metla"}}, exp, nil)))
}

func TestContract_Answered(t *testing.T) {
	exp := MustFor(StageSynonymExpansion)
	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{"explicit empty list", map[string]any{"expanded_synonyms": []any{}}, true},
		{"new words", map[string]any{"expanded_synonyms": []any{"metla"}}, true},
		{"missing field", map[string]any{"rationale": map[string]any{}}, false},
		{"null field", map[string]any{"expanded_synonyms": nil}, false},
		{"mistyped field", map[string]any{"expanded_synonyms": "metla"}, false},
		{"free text", map[string]any{"free_text": "nothing to add"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exp.Answered(tt.raw, Validate(tt.raw, exp, nil)))
		})
	}

	// Other stages still need a non-default value.
	filt := MustFor(StageSynonymFiltering)
	raw := map[string]any{"filtered_synonyms": []any{}}
	assert.False(t, filt.Answered(raw, Validate(raw, filt, nil)))
}

func TestFor(t *testing.T) {
	c, ok := For("synonym_expansion#3")
	require.True(t, ok)
	assert.Equal(t, StageSynonymExpansion, c.Stage)

	_, ok = For("unknown")
	assert.False(t, ok)
}

func TestPayload_Accessors(t *testing.T) {
	p := Payload{
		"s":      "  text ",
		"list":   []any{"a", nil, " ", "b"},
		"typed":  []string{"x", ""},
		"map":    map[string]any{"k": "v", "n": nil},
		"objs":   []any{map[string]any{"word": "w"}, "skip"},
		"nested": map[string]any{"a": 1},
	}

	assert.Equal(t, "text", p.String("s"))
	assert.Equal(t, "", p.String("missing"))
	assert.Equal(t, []string{"a", "b"}, p.Strings("list"))
	assert.Equal(t, []string{"x"}, p.Strings("typed"))
	assert.Equal(t, map[string]string{"k": "v"}, p.StringMap("map"))
	assert.Equal(t, []map[string]any{{"word": "w"}}, p.Objects("objs"))
	assert.Equal(t, map[string]any{"a": 1}, p.Map("nested"))

	assert.True(t, Sentinel().IsSentinel())
	assert.True(t, Payload(nil).IsSentinel())
	assert.False(t, p.IsSentinel())
}
