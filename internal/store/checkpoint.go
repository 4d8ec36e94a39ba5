package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint statuses.
const (
	CheckpointRunning   = "running"
	CheckpointCompleted = "completed"
)

// Checkpoint represents a batch job's checkpoint record.
type Checkpoint struct {
	ID         string
	InputFile  string
	OutputFile string
	SourceLang string
	TargetLang string
	Total      int
	Done       int
	Status     string
	CreatedAt  time.Time
}

// CreateCheckpoint creates a new checkpoint record and returns its ID.
func (s *Store) CreateCheckpoint(ctx context.Context, inputFile, outputFile, sourceLang, targetLang string, total int) (string, error) {
	id := "cp_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_checkpoints (id, input_file, output_file, source_lang, target_lang, total) VALUES (?, ?, ?, ?, ?, ?)`,
		id, inputFile, outputFile, sourceLang, targetLang, total)
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return id, nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	var cp Checkpoint
	var output sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.input_file, c.output_file, c.source_lang, c.target_lang, c.total, c.status, c.created_at,
			(SELECT COUNT(*) FROM batch_checkpoint_items i WHERE i.checkpoint_id = c.id)
		 FROM batch_checkpoints c WHERE c.id = ?`,
		checkpointID).Scan(&cp.ID, &cp.InputFile, &output, &cp.SourceLang, &cp.TargetLang, &cp.Total, &cp.Status, &cp.CreatedAt, &cp.Done)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	cp.OutputFile = output.String
	return &cp, nil
}

// MarkItem records that a synset of the batch finished with the given run.
func (s *Store) MarkItem(ctx context.Context, checkpointID, synsetID, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_checkpoint_items (checkpoint_id, synset_id, run_id, status) VALUES (?, ?, ?, ?)`,
		checkpointID, normalizeKey(synsetID), runID, status)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE batch_checkpoints SET updated_at = ? WHERE id = ?`, time.Now(), checkpointID)
	return err
}

// FinishedItems returns the synsets already done in a batch as a
// synset id → run id map.
func (s *Store) FinishedItems(ctx context.Context, checkpointID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT synset_id, run_id FROM batch_checkpoint_items WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string]string)
	for rows.Next() {
		var synsetID, runID string
		if err := rows.Scan(&synsetID, &runID); err != nil {
			return nil, err
		}
		items[synsetID] = runID
	}
	return items, rows.Err()
}

// CompleteCheckpoint marks a checkpoint as completed.
func (s *Store) CompleteCheckpoint(ctx context.Context, checkpointID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batch_checkpoints SET status = ?, updated_at = ? WHERE id = ?`,
		CheckpointCompleted, time.Now(), checkpointID)
	return err
}
