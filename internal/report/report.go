// Package report renders translation results for curators and exports their
// full audit trails.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/valpere/synsetran/internal/pipeline"
)

// Markdown renders a curator report: one section per synset with the source
// sense, the translation and the review signals a curator needs.
func Markdown(title string, results []*pipeline.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "| Synset | Status | Headword | Synonyms |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	for _, r := range results {
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", cell(r.SynsetID), r.Status(), cell(r.Translation), len(r.TranslatedSynonyms))
	}

	for _, r := range results {
		writeSection(&b, r)
	}
	return b.String()
}

func writeSection(b *strings.Builder, r *pipeline.Result) {
	fmt.Fprintf(b, "\n## %s\n\n", orDash(r.SynsetID))

	src := r.Source
	fmt.Fprintf(b, "- **Lemmas (%s):** %s\n", r.SourceLang, orDash(strings.Join(src.CleanLemmas(), ", ")))
	fmt.Fprintf(b, "- **Definition:** %s\n", orDash(src.Definition))
	if r.Payload.Metadata != nil && !r.Payload.Metadata.Empty() {
		m := r.Payload.Metadata
		fmt.Fprintf(b, "- **Lexical category:** %s\n", orDash(m.LexicalCategory))
		if len(m.TopicDomains) > 0 {
			fmt.Fprintf(b, "- **Topic domains:** %s\n", strings.Join(m.TopicDomains, ", "))
		}
	}

	if r.Payload.Skipped {
		fmt.Fprintf(b, "\n_Skipped: %s_\n", r.Payload.SkipReason)
		return
	}

	fmt.Fprintf(b, "\n### Translation (%s)\n\n", r.TargetLang)
	fmt.Fprintf(b, "```\n%s\n```\n", r.CuratorSummary)

	if len(r.TranslatedSynonyms) > 0 {
		b.WriteString("\n**Synonyms:** ")
		b.WriteString(strings.Join(r.TranslatedSynonyms, ", "))
		b.WriteString("\n")
	}

	if exp := r.Payload.Expansion; exp != nil {
		state := "converged"
		if !exp.Converged {
			state = "stopped without converging"
		}
		fmt.Fprintf(b, "\n**Expansion:** %d candidates after %d iterations, %s.\n", len(exp.ExpandedSynonyms), exp.IterationsRun, state)
	}

	if len(r.Payload.Removed) > 0 {
		b.WriteString("\n**Removed by filtering:**\n\n")
		for _, rm := range r.Payload.Removed {
			fmt.Fprintf(b, "- %s: %s\n", rm.Word, orDash(rm.Reason))
		}
	}
	if len(r.Payload.DroppedCompounds) > 0 {
		fmt.Fprintf(b, "\n**Dropped compounds:** %s\n", strings.Join(r.Payload.DroppedCompounds, ", "))
	}
	if len(r.Payload.FailedStages) > 0 {
		stages := make([]string, 0, len(r.Payload.FailedStages))
		for _, s := range r.Payload.FailedStages {
			stages = append(stages, string(s))
		}
		fmt.Fprintf(b, "\n**Failed stages:** %s\n", strings.Join(stages, ", "))
	}
	if v := r.Payload.LanguageCheck; v != nil && !v.Matches {
		fmt.Fprintf(b, "\n**Language check:** %s\n", v.Reason)
	}
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(title string, results []*pipeline.Result) ([]byte, error) {
	body, err := ToHTML([]byte(Markdown(title, results)))
	if err != nil {
		return nil, err
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body)
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithXHTML()),
)

// ToHTML converts GitHub flavoured Markdown to an HTML fragment. Raw HTML in
// the input is omitted.
func ToHTML(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(s string) string {
	return strings.ReplaceAll(orDash(s), "|", `\|`)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}
