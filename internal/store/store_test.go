package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCalls() []invoke.StageCall {
	rejected := invoke.StageCall{
		Stage:       schema.StageSenseAnalysis,
		Prompt:      "analyse",
		RawResponse: "not json",
		Payload:     schema.Payload{"free_text": "not json"},
		Attempt:     1,
		Error:       "payload carries no data",
	}
	return []invoke.StageCall{
		{
			Stage:       schema.StageSenseAnalysis,
			Prompt:      "analyse",
			RawResponse: `{"sense_summary":"a car"}`,
			Payload:     schema.Payload{"sense_summary": "a car"},
			Attempt:     2,
			Rejected:    []invoke.StageCall{rejected},
		},
		{
			Stage:       schema.StageDefinitionTranslation,
			Prompt:      "translate",
			RawResponse: "x",
			Payload:     schema.Sentinel(),
			Attempt:     3,
			Error:       schema.SentinelMessage,
			Rejected: []invoke.StageCall{
				{Stage: schema.StageDefinitionTranslation, Attempt: 1, Error: "boom"},
				{Stage: schema.StageDefinitionTranslation, Attempt: 2, Error: "boom"},
				{Stage: schema.StageDefinitionTranslation, Attempt: 3, RawResponse: "x", Error: "boom"},
			},
		},
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_SaveResult_StageCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveResult(ctx, Run{
		SynsetID:   "  03574555-n ",
		SourceLang: "en",
		TargetLang: "sr",
		Status:     StatusPartial,
		Result:     json.RawMessage(`{"translation":""}`),
	}, sampleCalls())
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated run id")
	}

	records, err := s.GetStageCalls(ctx, id)
	if err != nil {
		t.Fatalf("GetStageCalls failed: %v", err)
	}
	// 1 rejected + 1 accepted sense attempt, 3 rejected definition attempts.
	if len(records) != 5 {
		t.Fatalf("expected 5 stage call records, got %d", len(records))
	}
	if records[0].Accepted || !records[1].Accepted {
		t.Errorf("unexpected accepted flags: %v %v", records[0].Accepted, records[1].Accepted)
	}
	for i, r := range records {
		if r.Seq != i {
			t.Errorf("record %d has seq %d", i, r.Seq)
		}
	}
	for _, r := range records[2:] {
		if r.Accepted || r.Stage != string(schema.StageDefinitionTranslation) {
			t.Errorf("unexpected definition record: %+v", r)
		}
	}
	if records[4].RawResponse != "x" {
		t.Errorf("expected raw response of last attempt, got %q", records[4].RawResponse)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.SynsetID != "03574555-n" {
		t.Errorf("expected normalized synset id, got %q", run.SynsetID)
	}

	// Partial runs never reach translation memory.
	_, found, err := s.GetCachedResult(ctx, "03574555-n", "en", "sr")
	if err != nil {
		t.Fatalf("GetCachedResult failed: %v", err)
	}
	if found {
		t.Error("partial run must not be cached")
	}
}

func TestStore_Memory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	save := func(translation string) string {
		t.Helper()
		id, err := s.SaveResult(ctx, Run{
			SynsetID:    "03574555-n",
			SourceLang:  "en",
			TargetLang:  "sr",
			Status:      StatusComplete,
			Translation: translation,
			Synonyms:    []string{translation},
			Result:      json.RawMessage(`{"translation":"` + translation + `"}`),
		}, nil)
		if err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		return id
	}

	save("postrojenje")
	second := save("instalacija")

	result, found, err := s.GetCachedResult(ctx, "03574555-n", "en", "sr")
	if err != nil || !found {
		t.Fatalf("expected cache hit, found=%v err=%v", found, err)
	}
	if string(result) != `{"translation":"instalacija"}` {
		t.Errorf("expected latest result, got %s", result)
	}

	if _, found, _ := s.GetCachedResult(ctx, "03574555-n", "en", "hr"); found {
		t.Error("expected miss for other target language")
	}

	entries, err := s.ListMemory(ctx)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one memory entry, got %d", len(entries))
	}
	if entries[0].RunID != second || entries[0].UsageCount != 2 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}

	latest, err := s.LatestRun(ctx, "03574555-n", "sr")
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest.Translation != "instalacija" {
		t.Errorf("unexpected latest run: %+v", latest)
	}

	n, err := s.InvalidateMemory(ctx, "03574555-n")
	if err != nil || n != 1 {
		t.Fatalf("InvalidateMemory: n=%d err=%v", n, err)
	}
	if _, found, _ := s.GetCachedResult(ctx, "03574555-n", "en", "sr"); found {
		t.Error("invalidated entry must miss")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 1 || stats.InvalidEntries != 1 || stats.Runs != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	n, err = s.DeleteMemory(ctx, entries[0].ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteMemory: n=%d err=%v", n, err)
	}
	n, err = s.ClearMemory(ctx)
	if err != nil || n != 0 {
		t.Fatalf("ClearMemory: n=%d err=%v", n, err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, lang := range []string{"sr", "sr", "hr"} {
		if _, err := s.SaveResult(ctx, Run{SynsetID: "1", SourceLang: "en", TargetLang: lang, Status: StatusSkipped, Result: json.RawMessage(`{}`)}, nil); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
	}

	tests := []struct {
		lang  string
		limit int
		want  int
	}{
		{"", 0, 3},
		{"sr", 0, 2},
		{"hr", 0, 1},
		{"", 2, 2},
	}
	for _, tt := range tests {
		runs, err := s.ListRuns(ctx, tt.lang, tt.limit)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != tt.want {
			t.Errorf("ListRuns(%q, %d) = %d runs, want %d", tt.lang, tt.limit, len(runs), tt.want)
		}
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Checkpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cpID, err := s.CreateCheckpoint(ctx, "in.jsonl", "out.json", "en", "sr", 3)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	if err := s.MarkItem(ctx, cpID, "a", "run-a", StatusComplete); err != nil {
		t.Fatalf("MarkItem failed: %v", err)
	}
	if err := s.MarkItem(ctx, cpID, "b", "run-b", StatusPartial); err != nil {
		t.Fatalf("MarkItem failed: %v", err)
	}
	// Re-marking replaces the item.
	if err := s.MarkItem(ctx, cpID, "b", "run-b2", StatusComplete); err != nil {
		t.Fatalf("MarkItem failed: %v", err)
	}

	cp, err := s.GetCheckpoint(ctx, cpID)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if cp.Done != 2 || cp.Total != 3 || cp.Status != CheckpointRunning || cp.OutputFile != "out.json" {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}

	items, err := s.FinishedItems(ctx, cpID)
	if err != nil {
		t.Fatalf("FinishedItems failed: %v", err)
	}
	if items["a"] != "run-a" || items["b"] != "run-b2" {
		t.Errorf("unexpected items: %v", items)
	}

	if err := s.CompleteCheckpoint(ctx, cpID); err != nil {
		t.Fatalf("CompleteCheckpoint failed: %v", err)
	}
	cp, _ = s.GetCheckpoint(ctx, cpID)
	if cp.Status != CheckpointCompleted {
		t.Errorf("expected completed, got %s", cp.Status)
	}

	if _, err := s.GetCheckpoint(ctx, "cp_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LexicalEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := LexicalEntry{
		ID:              "03574555-n",
		LexicalCategory: "noun.artifact",
		TopicDomains:    []string{"industry"},
		Relations: map[string][]string{
			"hypernym": {"04564698-n"},
			"hyponym":  {"03096960-n", "02688443-n"},
		},
	}
	if err := s.PutLexicalEntry(ctx, entry); err != nil {
		t.Fatalf("PutLexicalEntry failed: %v", err)
	}

	got, err := s.GetLexicalEntry(ctx, "03574555-n")
	if err != nil {
		t.Fatalf("GetLexicalEntry failed: %v", err)
	}
	if got.LexicalCategory != "noun.artifact" || len(got.TopicDomains) != 1 {
		t.Errorf("unexpected entry: %+v", got)
	}
	if hypo := got.Relations["hyponym"]; len(hypo) != 2 || hypo[0] != "02688443-n" {
		t.Errorf("unexpected hyponyms: %v", hypo)
	}

	// Replacing drops stale relations.
	entry.Relations = map[string][]string{"antonym": {"x"}}
	if err := s.PutLexicalEntry(ctx, entry); err != nil {
		t.Fatalf("PutLexicalEntry failed: %v", err)
	}
	got, _ = s.GetLexicalEntry(ctx, "03574555-n")
	if len(got.Relations) != 1 || len(got.Relations["antonym"]) != 1 {
		t.Errorf("expected only antonym relation, got %v", got.Relations)
	}

	list, err := s.ListLexicalEntries(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListLexicalEntries: %d entries, err=%v", len(list), err)
	}

	if err := s.DeleteLexicalEntry(ctx, "03574555-n"); err != nil {
		t.Fatalf("DeleteLexicalEntry failed: %v", err)
	}
	if _, err := s.GetLexicalEntry(ctx, "03574555-n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteLexicalEntry(ctx, "03574555-n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}
