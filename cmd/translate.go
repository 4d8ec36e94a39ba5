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
	"github.com/valpere/synsetran/internal/synset"
)

var (
	inputFile  string
	outputFile string
	logsDir    string
	quiet      bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate synsets from a file",
	Long: `Translate every synset of a JSON, JSON Lines or YAML file.

Synsets already in translation memory are reused unless --no-cache is given.
Every run is stored with its full stage call history; curator summaries are
printed to stdout.

Example:
  synsetran translate -i synsets.jsonl -t sr -o results.json
  synsetran translate -i synsets.jsonl -t sr --provider anthropic --workers 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if outputFile != "" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		synsets, err := synset.Load(inputFile)
		if err != nil {
			return err
		}
		if len(synsets) == 0 {
			return fmt.Errorf("no synsets in %s", inputFile)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		results := make([]*pipeline.Result, len(synsets))
		fromCache := make([]bool, len(synsets))
		var pending []synset.Synset
		var pendingIdx []int
		for i, s := range synsets {
			if r, ok := cachedResult(ctx, db, s); ok {
				results[i] = r
				fromCache[i] = true
				continue
			}
			pending = append(pending, s)
			pendingIdx = append(pendingIdx, i)
		}
		if cached := len(synsets) - len(pending); cached > 0 {
			fmt.Fprintf(os.Stderr, "Using %d cached translations\n", cached)
		}

		if len(pending) > 0 {
			orch, cleanup, err := buildOrchestrator(ctx, db)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintf(os.Stderr, "Translating %d synsets into %s with %s (%d workers)\n",
				len(pending), cfg.TargetLang, cfg.Backend.Provider, cfg.Pipeline.Workers)

			translated, runErr := orch.TranslateParallel(ctx, pending, cfg.Pipeline.Workers)
			for j, r := range translated {
				if r == nil {
					continue
				}
				results[pendingIdx[j]] = r
				if db == nil {
					continue
				}
				if _, err := saveResult(ctx, db, r); err != nil {
					logger.Warn("failed to store result", zap.String("synset", r.SynsetID), zap.Error(err))
				}
			}
			if runErr != nil {
				fmt.Fprintf(os.Stderr, "Translation interrupted: %v\n", runErr)
			}
		}

		done := make([]*pipeline.Result, 0, len(results))
		counts := map[string]int{}
		for i, r := range results {
			if r == nil {
				continue
			}
			done = append(done, r)
			counts[r.Status()]++
			if !quiet {
				printSummary(os.Stdout, r, fromCache[i])
			}
		}

		if outputFile != "" {
			if err := writeResults(outputFile, done); err != nil {
				return err
			}
		}
		if logsDir != "" {
			index, err := report.WriteFullLogs(logsDir, done)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Full logs written: %s\n", index)
		}

		fmt.Printf("Translated %d/%d synsets into %s (%d complete, %d partial, %d skipped)\n",
			len(done), len(synsets), cfg.TargetLang,
			counts[pipeline.StatusComplete], counts[pipeline.StatusPartial], counts[pipeline.StatusSkipped])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file with synsets: .json, .jsonl or .yaml (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for results as JSON")
	translateCmd.Flags().StringVar(&logsDir, "logs-dir", "", "Directory for full per-synset audit logs")
	translateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print curator summaries")
	translateCmd.Flags().IntP("workers", "w", 1, "Synsets translated concurrently")
	addPipelineFlags(translateCmd)

	translateCmd.MarkFlagRequired("input")
}
