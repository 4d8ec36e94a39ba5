package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/synsetran/internal/invoke"
)

// Run statuses.
const (
	StatusComplete = "complete" // every stage produced data
	StatusPartial  = "partial"  // at least one stage ended with the sentinel
	StatusSkipped  = "skipped"  // nothing to translate
)

// Run is one translated synset. Result holds the serialized pipeline result.
type Run struct {
	ID          string
	SynsetID    string
	SourceLang  string
	TargetLang  string
	Provider    string
	Model       string
	Status      string
	Translation string
	Synonyms    []string
	Result      json.RawMessage
	CreatedAt   time.Time
}

// StageCallRecord is one persisted model attempt.
type StageCallRecord struct {
	RunID        string
	Seq          int
	Stage        string
	Attempt      int
	Accepted     bool
	Prompt       string
	SystemPrompt string
	RawResponse  string
	Payload      json.RawMessage
	Model        string
	Error        string
	Duration     time.Duration
}

// SaveResult stores a run with every attempt of every stage call and, for
// complete runs, refreshes the translation memory entry of the synset. It
// returns the run id.
func (s *Store) SaveResult(ctx context.Context, run Run, calls []invoke.StageCall) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	synonyms, err := json.Marshal(run.Synonyms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal synonyms: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO translation_runs (id, synset_id, source_lang, target_lang, provider, model, status, translation, synonyms, result_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, normalizeKey(run.SynsetID), run.SourceLang, run.TargetLang, run.Provider, run.Model,
		run.Status, run.Translation, string(synonyms), string(run.Result), now)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	seq := 0
	for _, call := range calls {
		for _, attempt := range flatten(call) {
			if err := insertStageCall(ctx, tx, run.ID, seq, attempt); err != nil {
				return "", err
			}
			seq++
		}
	}

	if run.Status == StatusComplete {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO translation_memory (id, synset_id, source_lang, target_lang, run_id, translation, result_json, usage_count, invalidated, last_used, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)
			 ON CONFLICT(synset_id, source_lang, target_lang) DO UPDATE SET
				run_id = excluded.run_id,
				translation = excluded.translation,
				result_json = excluded.result_json,
				invalidated = FALSE,
				last_used = excluded.last_used`,
			uuid.NewString(), normalizeKey(run.SynsetID), run.SourceLang, run.TargetLang, run.ID,
			run.Translation, string(run.Result), now, now)
		if err != nil {
			return "", fmt.Errorf("failed to save to memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

type attemptRecord struct {
	call     invoke.StageCall
	accepted bool
}

// flatten lists the rejected attempts of call followed by call itself.
func flatten(call invoke.StageCall) []attemptRecord {
	out := make([]attemptRecord, 0, len(call.Rejected)+1)
	for _, r := range call.Rejected {
		out = append(out, attemptRecord{call: r})
	}
	// A sentinel call repeats its last rejected attempt; only store it when
	// there is nothing else to record.
	if !call.Failed() || len(call.Rejected) == 0 {
		out = append(out, attemptRecord{call: call, accepted: !call.Failed()})
	}
	return out
}

func insertStageCall(ctx context.Context, tx *sql.Tx, runID string, seq int, a attemptRecord) error {
	payload, err := json.Marshal(a.call.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO stage_calls (run_id, seq, stage, attempt, accepted, prompt, system_prompt, raw_response, payload_json, model, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, string(a.call.Stage), a.call.Attempt, a.accepted, a.call.Prompt, a.call.SystemPrompt,
		a.call.RawResponse, string(payload), a.call.Model, a.call.Error, a.call.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save stage call: %w", err)
	}
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, synset_id, source_lang, target_lang, provider, model, status, translation, synonyms, result_json, created_at
		 FROM translation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// LatestRun returns the most recent run of a synset into targetLang.
func (s *Store) LatestRun(ctx context.Context, synsetID, targetLang string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, synset_id, source_lang, target_lang, provider, model, status, translation, synonyms, result_json, created_at
		 FROM translation_runs WHERE synset_id = ? AND (? = '' OR target_lang = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		normalizeKey(synsetID), targetLang, targetLang)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("synset %s: %w", synsetID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs newest first, optionally filtered by target language.
// A limit ≤ 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, targetLang string, limit int) ([]Run, error) {
	query := `SELECT id, synset_id, source_lang, target_lang, provider, model, status, translation, synonyms, result_json, created_at
		FROM translation_runs`
	var args []interface{}
	if targetLang != "" {
		query += ` WHERE target_lang = ?`
		args = append(args, targetLang)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetStageCalls returns every persisted attempt of a run in call order.
func (s *Store) GetStageCalls(ctx context.Context, runID string) ([]StageCallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, stage, attempt, accepted, prompt, system_prompt, raw_response, payload_json, model, error, duration_ms
		 FROM stage_calls WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StageCallRecord
	for rows.Next() {
		var r StageCallRecord
		var raw, payload, model, errMsg sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Stage, &r.Attempt, &r.Accepted, &r.Prompt, &r.SystemPrompt,
			&raw, &payload, &model, &errMsg, &durationMs); err != nil {
			return nil, err
		}
		r.RawResponse = raw.String
		r.Payload = json.RawMessage(payload.String)
		r.Model = model.String
		r.Error = errMsg.String
		r.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var provider, model, translation, synonyms sql.NullString
	var result string
	if err := row.Scan(&run.ID, &run.SynsetID, &run.SourceLang, &run.TargetLang, &provider, &model,
		&run.Status, &translation, &synonyms, &result, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Provider = provider.String
	run.Model = model.String
	run.Translation = translation.String
	run.Result = json.RawMessage(result)
	if synonyms.String != "" {
		if err := json.Unmarshal([]byte(synonyms.String), &run.Synonyms); err != nil {
			return nil, fmt.Errorf("failed to decode synonyms of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}
