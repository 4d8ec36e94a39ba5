package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LexicalEntry is the stored auxiliary metadata of one synset. Relations map
// a relation kind name to target synset ids.
type LexicalEntry struct {
	ID              string
	LexicalCategory string
	TopicDomains    []string
	Relations       map[string][]string
	UpdatedAt       time.Time
}

// PutLexicalEntry inserts or replaces an entry together with its relations.
func (s *Store) PutLexicalEntry(ctx context.Context, e LexicalEntry) error {
	domains, err := json.Marshal(e.TopicDomains)
	if err != nil {
		return fmt.Errorf("failed to marshal topic domains: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := normalizeKey(e.ID)
	if _, err := tx.ExecContext(ctx, `DELETE FROM lexical_relations WHERE synset_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear relations: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO lexical_metadata (id, lexical_category, topic_domains, updated_at) VALUES (?, ?, ?, ?)`,
		id, e.LexicalCategory, string(domains), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save lexical metadata: %w", err)
	}
	for kind, targets := range e.Relations {
		for _, target := range targets {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO lexical_relations (synset_id, kind, target_id) VALUES (?, ?, ?)`,
				id, kind, normalizeKey(target))
			if err != nil {
				return fmt.Errorf("failed to save relation: %w", err)
			}
		}
	}
	return tx.Commit()
}

// GetLexicalEntry returns the metadata of a synset or ErrNotFound.
func (s *Store) GetLexicalEntry(ctx context.Context, id string) (*LexicalEntry, error) {
	id = normalizeKey(id)

	var e LexicalEntry
	var category, domains sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lexical_category, topic_domains, updated_at FROM lexical_metadata WHERE id = ?`, id).
		Scan(&e.ID, &category, &domains, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lexical entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.LexicalCategory = category.String
	if domains.String != "" {
		if err := json.Unmarshal([]byte(domains.String), &e.TopicDomains); err != nil {
			return nil, fmt.Errorf("failed to decode topic domains of %s: %w", id, err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, target_id FROM lexical_relations WHERE synset_id = ? ORDER BY kind, target_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	e.Relations = map[string][]string{}
	for rows.Next() {
		var kind, target string
		if err := rows.Scan(&kind, &target); err != nil {
			return nil, err
		}
		e.Relations[kind] = append(e.Relations[kind], target)
	}
	return &e, rows.Err()
}

// ListLexicalEntries returns every stored entry without relations, ordered by id.
func (s *Store) ListLexicalEntries(ctx context.Context) ([]LexicalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lexical_category, topic_domains, updated_at FROM lexical_metadata ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LexicalEntry
	for rows.Next() {
		var e LexicalEntry
		var category, domains sql.NullString
		if err := rows.Scan(&e.ID, &category, &domains, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.LexicalCategory = category.String
		if domains.String != "" {
			_ = json.Unmarshal([]byte(domains.String), &e.TopicDomains)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteLexicalEntry removes an entry and its relations.
func (s *Store) DeleteLexicalEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lexical_metadata WHERE id = ?`, normalizeKey(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lexical entry %s: %w", id, ErrNotFound)
	}
	return nil
}
