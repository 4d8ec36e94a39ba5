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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/synsetran/internal/pipeline"
	"github.com/valpere/synsetran/internal/report"
	"github.com/valpere/synsetran/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored runs and manage the translation memory",
	Long: `List, inspect, export and clear stored translation runs and the
translation memory built from them.`,
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all translation memory entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListMemory(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in translation memory.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYNSET\tSOURCE\tTARGET\tUSED\tLAST USED\tINVALID\tTRANSLATION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%v\t%s\n",
				e.ID, e.SynsetID, e.SourceLang, e.TargetLang,
				e.UsageCount, e.LastUsed.Format("2006-01-02 15:04"),
				e.Invalidated, e.Translation)
		}
		return w.Flush()
	},
}

var resultsRunsLimit int

var resultsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), cfg.TargetLang, resultsRunsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSYNSET\tTARGET\tSTATUS\tPROVIDER\tCREATED\tTRANSLATION")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.SynsetID, r.TargetLang, r.Status, r.Provider,
				r.CreatedAt.Format("2006-01-02 15:04"), r.Translation)
		}
		return w.Flush()
	},
}

var resultsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation memory and run statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total entries:     %d\n", stats.TotalEntries)
		fmt.Printf("Active entries:    %d\n", stats.ActiveEntries)
		fmt.Printf("Invalid entries:   %d\n", stats.InvalidEntries)
		fmt.Printf("Total usage:       %d\n", stats.TotalUsage)
		fmt.Printf("Runs:              %d\n", stats.Runs)
		fmt.Printf("Partial runs:      %d\n", stats.PartialRuns)
		fmt.Printf("Stage calls:       %d\n", stats.StageCalls)
		fmt.Printf("Rejected attempts: %d\n", stats.RejectedCalls)
		return nil
	},
}

var resultsShowCalls bool

var resultsShowCmd = &cobra.Command{
	Use:   "show <run-or-synset-id>",
	Short: "Show the curator summary of a run",
	Long: `Show a stored run by run ID, or the latest run of a synset ID.
With --calls every model attempt of the run is listed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		run, err := findRun(ctx, db, args[0])
		if err != nil {
			return err
		}
		r, err := decodeResult(run.Result)
		if err != nil {
			return err
		}

		fmt.Printf("Run:      %s\n", run.ID)
		fmt.Printf("Created:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Backend:  %s %s\n\n", run.Provider, run.Model)
		printSummary(os.Stdout, r, false)

		if !resultsShowCalls {
			return nil
		}
		calls, err := db.GetStageCalls(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load stage calls: %w", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tSTAGE\tATTEMPT\tACCEPTED\tDURATION\tERROR")
		for _, c := range calls {
			fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%s\t%s\n",
				c.Seq, c.Stage, c.Attempt, c.Accepted, c.Duration, c.Error)
		}
		return w.Flush()
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete translation memory entries by entry ID or synset ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.DeleteMemory(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("no translation memory entry matches %s", args[0])
		}
		fmt.Printf("Deleted %d entries for %s\n", n, args[0])
		return nil
	},
}

var resultsInvalidateCmd = &cobra.Command{
	Use:   "invalidate <id>",
	Short: "Mark translation memory entries stale so they are translated again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.InvalidateMemory(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to invalidate entry: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("no translation memory entry matches %s", args[0])
		}
		fmt.Printf("Invalidated %d entries for %s\n", n, args[0])
		return nil
	},
}

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries from translation memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearMemory(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from translation memory.\n", n)
		return nil
	},
}

var (
	exportFormat string
	exportDir    string
	exportLimit  int
)

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored runs as full JSON logs or a curator report",
	Long: `Export the latest run of every stored synset.

Formats:
  json  one full audit log per synset plus _index.json
  md    a Markdown curator report (report.md)
  html  the curator report rendered as HTML (report.html)

Use -t to export a single target language.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), cfg.TargetLang, exportLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		results := latestResults(runs)
		if len(results) == 0 {
			fmt.Println("No runs to export.")
			return nil
		}

		title := "Synset translations"
		if cfg.TargetLang != "" {
			title += " (" + cfg.TargetLang + ")"
		}

		var path string
		switch strings.ToLower(exportFormat) {
		case "json":
			path, err = report.WriteFullLogs(exportDir, results)
		case "md", "markdown":
			path, err = writeExport(exportDir, "report.md", []byte(report.Markdown(title, results)))
		case "html":
			var page []byte
			if page, err = report.HTML(title, results); err == nil {
				path, err = writeExport(exportDir, "report.html", page)
			}
		default:
			return fmt.Errorf("unknown export format %q (want json, md or html)", exportFormat)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d synsets: %s\n", len(results), path)
		return nil
	},
}

// requireStore opens the database, which the results commands cannot do
// without.
func requireStore() (*store.Store, error) {
	db, err := openStore()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("no database configured (--db)")
	}
	return db, nil
}

func findRun(ctx context.Context, db *store.Store, id string) (*store.Run, error) {
	run, err := db.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		run, err = db.LatestRun(ctx, id, cfg.TargetLang)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// latestResults decodes the newest run of each synset and target language.
// runs must be ordered newest first.
func latestResults(runs []store.Run) []*pipeline.Result {
	seen := map[string]bool{}
	var out []*pipeline.Result
	for _, run := range runs {
		key := run.SynsetID + "\x00" + run.TargetLang
		if seen[key] {
			continue
		}
		seen[key] = true
		r, err := decodeResult(run.Result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping run %s: %v\n", run.ID, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func writeExport(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.PersistentFlags().StringP("target", "t", "", "Only runs into this target language")

	resultsRunsCmd.Flags().IntVarP(&resultsRunsLimit, "limit", "n", 50, "Maximum runs to list (0 = all)")
	resultsShowCmd.Flags().BoolVar(&resultsShowCalls, "calls", false, "List every model attempt of the run")

	resultsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format: json, md or html")
	resultsExportCmd.Flags().StringVarP(&exportDir, "dir", "d", "export", "Output directory")
	resultsExportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 0, "Maximum runs to consider (0 = all)")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsRunsCmd)
	resultsCmd.AddCommand(resultsStatsCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsDeleteCmd)
	resultsCmd.AddCommand(resultsInvalidateCmd)
	resultsCmd.AddCommand(resultsClearCmd)
	resultsCmd.AddCommand(resultsExportCmd)
}
