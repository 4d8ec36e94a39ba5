package synset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFromMap_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected Synset
	}{
		{
			name: "canonical keys",
			input: map[string]any{
				"id":         "ENG30-00001740-n",
				"pos":        "n",
				"lemmas":     []any{"entity"},
				"definition": "that which is perceived",
				"examples":   []any{"an entity"},
			},
			expected: Synset{
				ID:         "ENG30-00001740-n",
				POS:        "n",
				Lemmas:     []string{"entity"},
				Definition: "that which is perceived",
				Examples:   []string{"an entity"},
			},
		},
		{
			name: "historical aliases",
			input: map[string]any{
				"english_id":     "ENG30-1-v",
				"part_of_speech": "v",
				"literals":       []any{"sweep", " ", "brush"},
				"gloss":          "clean with a broom",
			},
			expected: Synset{
				ID:         "ENG30-1-v",
				POS:        "v",
				Lemmas:     []string{"sweep", "brush"},
				Definition: "clean with a broom",
			},
		},
		{
			name: "ili id and scalar lemma",
			input: map[string]any{
				"ili_id": "i35545",
				"lemmas": "center",
			},
			expected: Synset{
				ID:     "i35545",
				Lemmas: []string{"center"},
			},
		},
		{
			name: "empty alias falls through",
			input: map[string]any{
				"id":         "",
				"english_id": "X-2-a",
				"definition": "",
				"gloss":      "fallback gloss",
			},
			expected: Synset{
				ID:         "X-2-a",
				Definition: "fallback gloss",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromMap(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("FromMap() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestSynset_Translatable(t *testing.T) {
	if (Synset{ID: "x"}).Translatable() {
		t.Error("synset without lemmas or definition should not be translatable")
	}
	if (Synset{Lemmas: []string{"  "}}).Translatable() {
		t.Error("blank lemmas should not count")
	}
	if !(Synset{Definition: "a gloss"}).Translatable() {
		t.Error("definition alone should be translatable")
	}
	if !(Synset{Lemmas: []string{"entity"}}).Translatable() {
		t.Error("lemma alone should be translatable")
	}
}

func TestNormalizePOS(t *testing.T) {
	cases := map[string]string{"b": "r", "B ": "r", "n": "n", "v": "v", "": ""}
	for in, want := range cases {
		if got := NormalizePOS(in); got != want {
			t.Errorf("NormalizePOS(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_Formats(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"array.json":  `[{"id":"A-1-n","lemmas":["a"]},{"id":"A-2-n","gloss":"b"}]`,
		"single.json": `{"id":"A-1-n","lemmas":["a"]}`,
		"lines.jsonl": "{\"id\":\"A-1-n\",\"lemmas\":[\"a\"]}\n\n{\"id\":\"A-2-n\",\"gloss\":\"b\"}\n",
		"list.yaml":   "- id: A-1-n\n  lemmas: [a]\n- id: A-2-n\n  gloss: b\n",
	}
	want := map[string]int{"array.json": 2, "single.json": 1, "lines.jsonl": 2, "list.yaml": 2}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if len(got) != want[name] {
			t.Errorf("Load(%s) returned %d synsets, want %d", name, len(got), want[name])
		}
		if got[0].ID != "A-1-n" {
			t.Errorf("Load(%s) first id = %q", name, got[0].ID)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/synsets.json"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":\"ok\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed JSONL line")
	}
}
