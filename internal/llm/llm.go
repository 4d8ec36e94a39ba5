// Package llm is the chat-model boundary of the pipeline. A Backend takes an
// ordered list of role-tagged messages and returns the model's reply,
// possibly split into several text fragments.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is one model reply. Fragments are concatenated in order by Text.
type Response struct {
	Fragments        []string `json:"fragments"`
	Model            string   `json:"model,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
}

// Text joins the reply fragments into one trimmed string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(r.Fragments, ""))
}

// Backend invokes a chat model. Implementations must be safe for concurrent
// use; the pipeline may translate several synsets at once.
type Backend interface {
	Invoke(ctx context.Context, messages []Message) (*Response, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, messages []Message) (*Response, error)

func (f BackendFunc) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	return f(ctx, messages)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

// Providers lists the provider names accepted by New.
var Providers = []string{ProviderOllama, ProviderOpenRouter, ProviderAnthropic, ProviderGemini}

var ErrUnknownProvider = errors.New("unknown provider")

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 4096
)

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOllama, "":
		return NewOllama(cfg), nil
	case ProviderOpenRouter:
		return NewOpenRouter(cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers, ", "))
	}
}

// splitSystem separates system messages, which several APIs take as a
// dedicated parameter, from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}
