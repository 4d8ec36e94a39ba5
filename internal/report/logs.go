package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/pipeline"
)

// IndexFile is the name of the batch index written next to the per-synset
// logs.
const IndexFile = "_index.json"

// FullLog is the untruncated audit trail of one synset.
type FullLog struct {
	Metadata LogMetadata        `json:"metadata"`
	Stages   []invoke.StageCall `json:"stages"`
	Result   *pipeline.Result   `json:"result"`
}

type LogMetadata struct {
	SynsetID       string    `json:"synset_id"`
	Translation    string    `json:"translation"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	TotalStages    int       `json:"total_stages"`
	FailedStages   int       `json:"failed_stages"`
	RejectedCalls  int       `json:"rejected_attempts"`
	CuratorSummary string    `json:"curator_summary"`
}

// Index lists the synsets of a batch export.
type Index struct {
	TotalSynsets int          `json:"total_synsets"`
	Timestamp    time.Time    `json:"timestamp"`
	Synsets      []IndexEntry `json:"synsets"`
}

type IndexEntry struct {
	ID          string `json:"id"`
	Translation string `json:"translation"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
}

// NewFullLog builds the full log of r.
func NewFullLog(r *pipeline.Result, at time.Time) FullLog {
	rejected := 0
	for _, c := range r.Payload.Calls {
		rejected += len(c.Rejected)
	}
	stages := r.Payload.Calls
	if stages == nil {
		stages = []invoke.StageCall{}
	}
	return FullLog{
		Metadata: LogMetadata{
			SynsetID:       r.SynsetID,
			Translation:    r.Translation,
			SourceLang:     r.SourceLang,
			TargetLang:     r.TargetLang,
			Status:         r.Status(),
			Timestamp:      at.UTC(),
			TotalStages:    len(stages),
			FailedStages:   len(r.Payload.FailedStages),
			RejectedCalls:  rejected,
			CuratorSummary: r.CuratorSummary,
		},
		Stages: stages,
		Result: r,
	}
}

// LogFilename maps a synset id to a file name. Characters that are unsafe in
// paths are replaced with underscores.
func LogFilename(synsetID string) string {
	id := strings.TrimSpace(synsetID)
	if id == "" {
		id = "unknown"
	}
	id = strings.NewReplacer(":", "_", "/", "_", `\`, "_", " ", "_").Replace(id)
	return id + ".json"
}

// WriteFullLogs writes one JSON log per result into dir and an index of them.
// It returns the path of the index.
func WriteFullLogs(dir string, results []*pipeline.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	now := time.Now()
	index := Index{
		Timestamp: now.UTC(),
		Synsets:   make([]IndexEntry, 0, len(results)),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		name := LogFilename(r.SynsetID)
		if err := writeJSON(filepath.Join(dir, name), NewFullLog(r, now)); err != nil {
			return "", err
		}
		index.Synsets = append(index.Synsets, IndexEntry{
			ID:          r.SynsetID,
			Translation: r.Translation,
			Filename:    name,
			Status:      r.Status(),
		})
	}
	index.TotalSynsets = len(index.Synsets)

	path := filepath.Join(dir, IndexFile)
	if err := writeJSON(path, index); err != nil {
		return "", err
	}
	return path, nil
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []*pipeline.Result) error {
	if results == nil {
		results = []*pipeline.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
