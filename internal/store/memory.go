package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetCachedResult returns the remembered result of a synset for a language
// pair. Invalidated entries are reported as misses.
func (s *Store) GetCachedResult(ctx context.Context, synsetID, sourceLang, targetLang string) (json.RawMessage, bool, error) {
	var result string
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT result_json, invalidated FROM translation_memory WHERE synset_id = ? AND source_lang = ? AND target_lang = ?`,
		normalizeKey(synsetID), sourceLang, targetLang).Scan(&result, &invalidated)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if invalidated {
		return nil, false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE synset_id = ? AND source_lang = ? AND target_lang = ?`,
		time.Now(), normalizeKey(synsetID), sourceLang, targetLang)

	return json.RawMessage(result), true, err
}

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID          string
	SynsetID    string
	SourceLang  string
	TargetLang  string
	RunID       string
	Translation string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises translation memory and run history.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
	Runs           int
	PartialRuns    int
	StageCalls     int
	RejectedCalls  int
}

// InvalidateMemory marks an entry stale; the next translation of the synset
// runs the pipeline again. key is an entry id or a synset id.
func (s *Store) InvalidateMemory(ctx context.Context, key string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE translation_memory SET invalidated = TRUE WHERE id = ? OR synset_id = ?`, key, normalizeKey(key))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMemory permanently removes memory entries by entry id or synset id.
func (s *Store) DeleteMemory(ctx context.Context, key string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM translation_memory WHERE id = ? OR synset_id = ?`, key, normalizeKey(key))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearMemory removes all translation memory entries. Runs are kept.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all translation memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, synset_id, source_lang, target_lang, run_id, COALESCE(translation, ''), usage_count, invalidated, last_used
		 FROM translation_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SynsetID, &e.SourceLang, &e.TargetLang, &e.RunID, &e.Translation, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the translation memory and run log.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM translation_runs),
			(SELECT COUNT(*) FROM translation_runs WHERE status = ?),
			(SELECT COUNT(*) FROM stage_calls),
			(SELECT COUNT(*) FROM stage_calls WHERE NOT accepted)`, StatusPartial).Scan(
		&stats.Runs,
		&stats.PartialRuns,
		&stats.StageCalls,
		&stats.RejectedCalls,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read run stats: %w", err)
	}
	return stats, nil
}
