package hint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
)

func TestGoogle_Suggest(t *testing.T) {
	var gotQ []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse request: %v", err)
		}
		gotQ = r.Form["q"]
		if tgt := r.Form.Get("target"); tgt != "sr" {
			t.Errorf("expected target sr, got %q", tgt)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"translations": []map[string]string{
					{"translatedText": "postrojenje"},
					{"translatedText": "plant"},
					{"translatedText": "fabrika &amp; pogon"},
				},
			},
		})
	}))
	defer server.Close()

	g, err := NewGoogle(context.Background(), GoogleConfig{Endpoint: server.URL + "/"}, option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewGoogle failed: %v", err)
	}
	defer g.Close()

	hints, err := g.Suggest(context.Background(), []string{"installation", " ", "plant", "works"}, "en", "sr")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	if len(gotQ) != 3 {
		t.Errorf("expected 3 words sent, got %v", gotQ)
	}
	want := []string{"installation → postrojenje", "works → fabrika & pogon"}
	if len(hints) != len(want) {
		t.Fatalf("expected %v, got %v", want, hints)
	}
	for i := range want {
		if hints[i] != want[i] {
			t.Errorf("hint %d = %q, want %q", i, hints[i], want[i])
		}
	}
}

func TestGoogle_Suggest_NoWords(t *testing.T) {
	g := &Google{}
	hints, err := g.Suggest(context.Background(), []string{"", "  "}, "en", "sr")
	if err != nil || hints != nil {
		t.Errorf("expected no hints and no error, got %v, %v", hints, err)
	}
}

func TestGoogle_Suggest_InvalidTarget(t *testing.T) {
	g := &Google{}
	if _, err := g.Suggest(context.Background(), []string{"plant"}, "en", "not a tag!"); err == nil {
		t.Error("expected error for invalid target language")
	}
}
