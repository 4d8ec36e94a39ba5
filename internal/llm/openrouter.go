package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "qwen/qwen2.5-72b-instruct:free"
)

// OpenRouter calls the OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOpenRouter(cfg Config) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter API key required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.maxTokens(),
		client:      &http.Client{Timeout: cfg.timeout()},
	}, nil
}

func (s *OpenRouter) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	openrouterReq := map[string]interface{}{
		"model":       s.model,
		"messages":    messages,
		"temperature": s.temperature,
		"max_tokens":  s.maxTokens,
	}

	jsonData, err := json.Marshal(openrouterReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://synsetran.local")
	httpReq.Header.Set("X-Title", "SynseTran")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("openrouter returned status %d: %v", resp.StatusCode, errResp)
	}

	// content is a string for most models and a list of parts for some.
	var openrouterResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openrouterResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(openrouterResp.Choices) == 0 {
		return nil, errors.New("empty response from openrouter")
	}

	return &Response{
		Fragments:        contentFragments(openrouterResp.Choices[0].Message.Content),
		Model:            openrouterResp.Model,
		PromptTokens:     openrouterResp.Usage.PromptTokens,
		CompletionTokens: openrouterResp.Usage.CompletionTokens,
	}, nil
}

func contentFragments(raw json.RawMessage) []string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []string{text}
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, p.Text)
		}
		return out
	}
	return nil
}
