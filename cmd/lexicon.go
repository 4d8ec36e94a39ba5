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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/synsetran/internal/lexicon"
)

var lexiconCmd = &cobra.Command{
	Use:   "lexicon",
	Short: "Manage lexical metadata",
	Long: `Add, list, import and delete lexical metadata of synsets.

The lexical category, topic domains and semantic relations of a synset are
shown to the model during translation and in curator summaries.`,
}

var lexiconListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all lexical metadata entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := lexicon.NewStoreProvider(db).List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list lexical metadata: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Lexicon is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tDOMAINS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.LexicalCategory, strings.Join(e.TopicDomains, ", "))
		}
		return w.Flush()
	},
}

var lexiconShowCmd = &cobra.Command{
	Use:   "show <synset-id>",
	Short: "Show the lexical metadata of a synset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := lexicon.NewStoreProvider(db).Lookup(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", m.ID)
		fmt.Printf("Category:  %s\n", m.LexicalCategory)
		fmt.Printf("Domains:   %s\n", strings.Join(m.TopicDomains, ", "))
		for _, kind := range lexicon.RelationKinds {
			if ids := m.Related(kind); len(ids) > 0 {
				fmt.Printf("%-10s %s\n", kind.String()+":", strings.Join(ids, ", "))
			}
		}
		return nil
	},
}

var (
	lexiconAddCategory  string
	lexiconAddDomains   []string
	lexiconAddRelations []string
)

var lexiconAddCmd = &cobra.Command{
	Use:   "add <synset-id>",
	Short: "Add or replace the lexical metadata of a synset",
	Long: `Add or replace the lexical metadata of a synset.

Relations are given as kind=id[,id...]; kinds are hypernym, hyponym,
similar_to, antonym, part_holonym and part_meronym.

Example:
  synsetran lexicon add ENG30-03956922-n --category noun.artifact \
    --domain industry --relation hypernym=ENG30-03315023-n`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := lexicon.Metadata{
			ID:              lexicon.NormalizeID(args[0]),
			LexicalCategory: lexiconAddCategory,
			TopicDomains:    lexiconAddDomains,
		}
		if m.ID == "" {
			return fmt.Errorf("invalid synset id %q", args[0])
		}
		for _, rel := range lexiconAddRelations {
			name, ids, ok := strings.Cut(rel, "=")
			if !ok || strings.TrimSpace(ids) == "" {
				return fmt.Errorf("relation %q must look like kind=id[,id...]", rel)
			}
			kind, err := lexicon.ParseRelationKind(name)
			if err != nil {
				return err
			}
			var related []string
			for _, id := range strings.Split(ids, ",") {
				if id = strings.TrimSpace(id); id != "" {
					related = append(related, id)
				}
			}
			m.SetRelated(kind, append(m.Related(kind), related...))
		}

		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := lexicon.NewStoreProvider(db).Put(context.Background(), m); err != nil {
			return fmt.Errorf("failed to add lexical metadata: %w", err)
		}
		fmt.Printf("Added: %s %s\n", m.ID, m.LexicalCategory)
		return nil
	},
}

var lexiconDeleteCmd = &cobra.Command{
	Use:   "delete <synset-id>",
	Short: "Delete the lexical metadata of a synset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := lexicon.NewStoreProvider(db).Delete(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete lexical metadata: %w", err)
		}
		fmt.Printf("Deleted lexical metadata: %s\n", args[0])
		return nil
	},
}

var lexiconImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import lexical metadata from a JSON file",
	Long: `Import lexical metadata from a JSON file holding either an array of
records or an object keyed by synset id. Existing entries are replaced.

Example record:
  {"id": "ENG30-03956922-n", "lexical_category": "noun.artifact",
   "topic_domains": ["industry"], "relations": {"hypernym": ["ENG30-03315023-n"]}}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := lexicon.ImportFile(context.Background(), lexicon.NewStoreProvider(db), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entries from %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lexiconCmd)

	lexiconAddCmd.Flags().StringVar(&lexiconAddCategory, "category", "", "Lexical category (e.g. noun.artifact)")
	lexiconAddCmd.Flags().StringSliceVar(&lexiconAddDomains, "domain", nil, "Topic domain (repeatable)")
	lexiconAddCmd.Flags().StringArrayVar(&lexiconAddRelations, "relation", nil, "Relation as kind=id[,id...] (repeatable)")

	lexiconCmd.AddCommand(lexiconListCmd)
	lexiconCmd.AddCommand(lexiconShowCmd)
	lexiconCmd.AddCommand(lexiconAddCmd)
	lexiconCmd.AddCommand(lexiconDeleteCmd)
	lexiconCmd.AddCommand(lexiconImportCmd)
}
