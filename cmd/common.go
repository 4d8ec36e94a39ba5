/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/hint"
	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/langcheck"
	"github.com/valpere/synsetran/internal/lexicon"
	"github.com/valpere/synsetran/internal/llm"
	"github.com/valpere/synsetran/internal/pipeline"
	"github.com/valpere/synsetran/internal/report"
	"github.com/valpere/synsetran/internal/store"
	"github.com/valpere/synsetran/internal/synset"
)

// flagKeys maps command line flags to config keys. Only the flags of the
// command being run are bound, so commands may share flag names.
var flagKeys = map[string]string{
	"db":             "store.path",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"source":         "source_lang",
	"target":         "target_lang",
	"provider":       "backend.provider",
	"model":          "backend.model",
	"base-url":       "backend.base_url",
	"temperature":    "backend.temperature",
	"timeout":        "backend.timeout",
	"workers":        "pipeline.workers",
	"max-retries":    "pipeline.max_retries",
	"iterations":     "pipeline.max_expansion_iterations",
	"review":         "pipeline.review_definition",
	"no-cache":       "store.no_cache",
	"hints":          "hints.google",
	"credentials":    "hints.credentials",
	"project":        "hints.project_id",
	"language-check": "language_check",
}

func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// addPipelineFlags registers the flags shared by the commands that run the
// pipeline.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("source", "s", "en", "Source language code")
	f.StringP("target", "t", "", "Target language code (required unless set in config)")

	f.String("provider", llm.ProviderOllama, "Model backend (ollama, openrouter, anthropic, gemini)")
	f.String("model", "", "Model name (backend default if empty)")
	f.String("base-url", "", "Backend base URL override")
	f.Float64("temperature", 0.2, "Sampling temperature")
	f.Duration("timeout", 0, "Per-call timeout (0 uses the backend default)")

	f.Int("max-retries", invoke.DefaultMaxRetries, "Retries per stage after a rejected response")
	f.Int("iterations", 5, "Maximum synonym expansion iterations")
	f.Bool("review", true, "Run the definition quality review stage")

	f.Bool("no-cache", false, "Do not reuse results from translation memory")
	f.Bool("hints", false, "Add Google Translate suggestions to the lemma prompt")
	f.StringP("credentials", "c", "", "Path to Google Cloud credentials (for --hints)")
	f.StringP("project", "p", "", "Google Cloud project ID (for --hints)")
	f.Bool("language-check", false, "Verify the language of translated definitions")
}

// openStore opens the configured database. It returns nil when no path is
// configured.
func openStore() (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildOrchestrator wires the backend and the optional collaborators. The
// returned cleanup releases them.
func buildOrchestrator(ctx context.Context, db *store.Store) (*pipeline.Orchestrator, func(), error) {
	cleanup := func() {}

	backend, err := llm.New(ctx, cfg.Backend)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to create backend: %w", err)
	}
	svc := invoke.New(backend, logger,
		invoke.WithMaxRetries(cfg.Pipeline.MaxRetries),
		invoke.WithRetryDelay(cfg.Pipeline.RetryDelay),
	)

	var opts []pipeline.Option
	if db != nil {
		meta, err := lexicon.NewCachedProvider(lexicon.NewStoreProvider(db), cfg.Store.MetadataCacheSize, logger)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, pipeline.WithLexicon(meta))
	}
	if cfg.Hints.Google {
		g, err := hint.NewGoogle(ctx, cfg.Hints.GoogleConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: translation hints disabled: %v\n", err)
		} else {
			opts = append(opts, pipeline.WithHints(g))
			cleanup = func() { _ = g.Close() }
		}
	}
	if cfg.LanguageCheck {
		opts = append(opts, pipeline.WithLanguageCheck(langcheck.New()))
	}

	orch := pipeline.New(svc, pipeline.Config{
		SourceLang:             cfg.SourceLang,
		TargetLang:             cfg.TargetLang,
		MaxExpansionIterations: cfg.Pipeline.MaxExpansionIterations,
		ReviewDefinition:       cfg.Pipeline.ReviewDefinition,
	}, logger, opts...)

	logger.Debug("pipeline ready",
		zap.String("provider", cfg.Backend.Provider),
		zap.String("model", cfg.Backend.Model),
		zap.Int("call_budget", orch.CallBudget()),
	)
	return orch, cleanup, nil
}

// cachedResult returns the translation memory entry of s, if any.
func cachedResult(ctx context.Context, db *store.Store, s synset.Synset) (*pipeline.Result, bool) {
	if db == nil || cfg.Store.NoCache || s.ID == "" {
		return nil, false
	}
	raw, found, err := db.GetCachedResult(ctx, s.ID, cfg.SourceLang, cfg.TargetLang)
	if err != nil {
		logger.Warn("translation memory lookup failed", zap.String("synset", s.ID), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	r, err := decodeResult(raw)
	if err != nil {
		logger.Warn("ignoring unreadable translation memory entry", zap.String("synset", s.ID), zap.Error(err))
		return nil, false
	}
	return r, true
}

// saveResult persists r with its stage calls and returns the run id.
func saveResult(ctx context.Context, db *store.Store, r *pipeline.Result) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return db.SaveResult(ctx, store.Run{
		SynsetID:    r.SynsetID,
		SourceLang:  r.SourceLang,
		TargetLang:  r.TargetLang,
		Provider:    cfg.Backend.Provider,
		Model:       cfg.Backend.Model,
		Status:      r.Status(),
		Translation: r.Translation,
		Synonyms:    r.TranslatedSynonyms,
		Result:      data,
	}, r.Payload.Calls)
}

func decodeResult(raw json.RawMessage) (*pipeline.Result, error) {
	var r pipeline.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &r, nil
}

func printSummary(w io.Writer, r *pipeline.Result, fromCache bool) {
	origin := ""
	if fromCache {
		origin = ", from cache"
	}
	fmt.Fprintf(w, "=== %s (%s%s) ===\n%s\n\n", r.SynsetID, r.Status(), origin, r.CuratorSummary)
}

// writeResults writes results as JSON to path, creating its directory.
func writeResults(path string, results []*pipeline.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	return report.WriteJSON(f, results)
}
