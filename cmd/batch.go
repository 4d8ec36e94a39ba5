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
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/pipeline"
	"github.com/valpere/synsetran/internal/report"
	"github.com/valpere/synsetran/internal/store"
	"github.com/valpere/synsetran/internal/synset"
)

var (
	batchInputFile  string
	batchOutputFile string
	batchLogsDir    string
	batchResume     string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Translate a synset file with checkpoints",
	Long: `Translate a synset file one synset at a time, recording progress in the
database so an interrupted job can be resumed.

A checkpoint ID is printed at the start of each run. If the job is interrupted,
use --resume with that ID to skip synsets that were already translated.

Example:
  synsetran batch -i synsets.jsonl -t sr -o results.json
  synsetran batch -i synsets.jsonl -t sr --resume cp_6f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if batchOutputFile != "" && batchInputFile == batchOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		synsets, err := synset.Load(batchInputFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		if db == nil {
			return fmt.Errorf("batch requires a database (--db)")
		}
		defer db.Close()

		var checkpointID string
		finished := map[string]string{}
		if batchResume != "" {
			cp, err := db.GetCheckpoint(ctx, batchResume)
			if err != nil {
				return fmt.Errorf("failed to load checkpoint: %w", err)
			}
			if cp.TargetLang != cfg.TargetLang {
				return fmt.Errorf("checkpoint %s targets %s, not %s", cp.ID, cp.TargetLang, cfg.TargetLang)
			}
			checkpointID = cp.ID
			finished, err = db.FinishedItems(ctx, checkpointID)
			if err != nil {
				return fmt.Errorf("failed to load checkpoint items: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Resuming checkpoint %s (%d/%d synsets already done)\n", checkpointID, len(finished), cp.Total)
		} else {
			checkpointID, err = db.CreateCheckpoint(ctx, batchInputFile, batchOutputFile, cfg.SourceLang, cfg.TargetLang, len(synsets))
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Checkpoint ID: %s (use --resume %s to resume if interrupted)\n", checkpointID, checkpointID)
		}

		results := make([]*pipeline.Result, len(synsets))
		var pending []synset.Synset
		var pendingIdx []int
		for i, s := range synsets {
			if runID, ok := finished[s.ID]; ok {
				if r := storedResult(ctx, db, runID); r != nil {
					results[i] = r
					continue
				}
			}
			if r, ok := cachedResult(ctx, db, s); ok {
				results[i] = r
				markItem(ctx, db, checkpointID, s.ID, "", r.Status())
				continue
			}
			pending = append(pending, s)
			pendingIdx = append(pendingIdx, i)
		}

		if len(pending) > 0 {
			orch, cleanup, err := buildOrchestrator(ctx, db)
			if err != nil {
				return err
			}
			defer cleanup()

			in := make(chan synset.Synset)
			go func() {
				defer close(in)
				for _, s := range pending {
					select {
					case in <- s:
					case <-ctx.Done():
						return
					}
				}
			}()

			// Stream is sequential, so results arrive in input order.
			n := 0
			for r := range orch.Stream(ctx, in) {
				if ctx.Err() != nil {
					// cut short; leave it for --resume
					break
				}
				results[pendingIdx[n]] = r
				n++
				runID, err := saveResult(ctx, db, r)
				if err != nil {
					logger.Warn("failed to store result", zap.String("synset", r.SynsetID), zap.Error(err))
				}
				markItem(ctx, db, checkpointID, r.SynsetID, runID, r.Status())
				fmt.Fprintf(os.Stderr, "[%d/%d] %s: %s (%s)\n", n, len(pending), r.SynsetID, r.Translation, r.Status())
			}
		}

		ordered := make([]*pipeline.Result, 0, len(results))
		for _, r := range results {
			if r != nil {
				ordered = append(ordered, r)
			}
		}

		if batchOutputFile != "" {
			if err := writeResults(batchOutputFile, ordered); err != nil {
				return err
			}
		}
		if batchLogsDir != "" {
			if _, err := report.WriteFullLogs(batchLogsDir, ordered); err != nil {
				return err
			}
		}

		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "Interrupted: %d/%d synsets done, resume with --resume %s\n", len(ordered), len(synsets), checkpointID)
			return nil
		}
		if err := db.CompleteCheckpoint(ctx, checkpointID); err != nil {
			logger.Warn("failed to complete checkpoint", zap.String("checkpoint", checkpointID), zap.Error(err))
		}

		fmt.Printf("Batch complete: %d synsets translated into %s\n", len(ordered), cfg.TargetLang)
		return nil
	},
}

func storedResult(ctx context.Context, db *store.Store, runID string) *pipeline.Result {
	if runID == "" {
		return nil
	}
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		logger.Warn("checkpoint run unavailable", zap.String("run", runID), zap.Error(err))
		return nil
	}
	r, err := decodeResult(run.Result)
	if err != nil {
		logger.Warn("checkpoint run unreadable", zap.String("run", runID), zap.Error(err))
		return nil
	}
	return r
}

func markItem(ctx context.Context, db *store.Store, checkpointID, synsetID, runID, status string) {
	if err := db.MarkItem(ctx, checkpointID, synsetID, runID, status); err != nil {
		logger.Warn("failed to update checkpoint", zap.String("synset", synsetID), zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputFile, "input", "i", "", "Input file with synsets: .json, .jsonl or .yaml (required)")
	batchCmd.Flags().StringVarP(&batchOutputFile, "output", "o", "", "Output file for results as JSON")
	batchCmd.Flags().StringVar(&batchLogsDir, "logs-dir", "", "Directory for full per-synset audit logs")
	batchCmd.Flags().StringVar(&batchResume, "resume", "", "Resume from checkpoint ID (printed at start of original run)")
	addPipelineFlags(batchCmd)

	batchCmd.MarkFlagRequired("input")
}
