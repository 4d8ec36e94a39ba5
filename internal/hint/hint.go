// Package hint fetches machine translation suggestions for synset lemmas.
// Suggestions are shown to the model as hints only; the pipeline works
// without them.
package hint

import (
	"context"
	"fmt"
	"html"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Provider suggests target-language renderings of words.
type Provider interface {
	Suggest(ctx context.Context, words []string, sourceLang, targetLang string) ([]string, error)
}

// GoogleConfig configures the Google Cloud Translation client.
type GoogleConfig struct {
	Credentials string `mapstructure:"credentials"`
	ProjectID   string `mapstructure:"project_id"`
	// Endpoint overrides the API base URL.
	Endpoint string `mapstructure:"endpoint"`
}

// Google suggests translations with Google Cloud Translation.
type Google struct {
	client *translate.Client
}

// NewGoogle creates a client. Credentials fall back to the application
// default credentials.
func NewGoogle(ctx context.Context, cfg GoogleConfig, extra ...option.ClientOption) (*Google, error) {
	opts := []option.ClientOption{}
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Google{client: client}, nil
}

func (g *Google) Close() error {
	return g.client.Close()
}

// Suggest translates each word and returns "word → translation" lines.
// Words the service leaves unchanged are omitted.
func (g *Google) Suggest(ctx context.Context, words []string, sourceLang, targetLang string) ([]string, error) {
	inputs := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			inputs = append(inputs, w)
		}
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	target, err := language.Parse(targetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}
	opts := &translate.Options{Format: translate.Text}
	if sourceLang != "" && sourceLang != "auto" {
		source, err := language.Parse(sourceLang)
		if err != nil {
			return nil, fmt.Errorf("invalid source language: %w", err)
		}
		opts.Source = source
	}

	translations, err := g.client.Translate(ctx, inputs, target, opts)
	if err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}

	var hints []string
	for i, tr := range translations {
		if i >= len(inputs) {
			break
		}
		text := strings.TrimSpace(html.UnescapeString(tr.Text))
		if text == "" || strings.EqualFold(text, inputs[i]) {
			continue
		}
		hints = append(hints, inputs[i]+" → "+text)
	}
	return hints, nil
}
