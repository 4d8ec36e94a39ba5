// Package store persists translation runs, their full per-attempt audit
// trail, the translation memory, batch checkpoints and lexical metadata in a
// single sqlite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY when
	// parallel translations save results.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS translation_runs (
		id TEXT PRIMARY KEY,
		synset_id TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		status TEXT NOT NULL,
		translation TEXT,
		synonyms TEXT,
		result_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- stage_calls keeps every attempt, rejected ones included, untruncated
	CREATE TABLE IF NOT EXISTS stage_calls (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		accepted BOOLEAN NOT NULL,
		prompt TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		raw_response TEXT,
		payload_json TEXT,
		model TEXT,
		error TEXT,
		duration_ms INTEGER,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES translation_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		synset_id TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		run_id TEXT NOT NULL,
		translation TEXT,
		result_json TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(synset_id, source_lang, target_lang)
	);

	-- batch_checkpoints tracks progress of batch jobs for resume support
	CREATE TABLE IF NOT EXISTS batch_checkpoints (
		id TEXT PRIMARY KEY,
		input_file TEXT NOT NULL,
		output_file TEXT,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		total INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS batch_checkpoint_items (
		checkpoint_id TEXT NOT NULL,
		synset_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (checkpoint_id, synset_id),
		FOREIGN KEY (checkpoint_id) REFERENCES batch_checkpoints(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS lexical_metadata (
		id TEXT PRIMARY KEY,
		lexical_category TEXT,
		topic_domains TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lexical_relations (
		synset_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		PRIMARY KEY (synset_id, kind, target_id),
		FOREIGN KEY (synset_id) REFERENCES lexical_metadata(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_synset ON translation_runs(synset_id, target_lang);
	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON translation_memory(synset_id, source_lang, target_lang);
	CREATE INDEX IF NOT EXISTS idx_checkpoint_items ON batch_checkpoint_items(checkpoint_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeKey trims whitespace and applies Unicode NFC normalization
// for consistent key comparison.
func normalizeKey(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
