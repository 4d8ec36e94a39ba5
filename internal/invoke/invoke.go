// Package invoke performs one validated, retried model call per pipeline
// stage and records everything that was sent and received.
package invoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/decode"
	"github.com/valpere/synsetran/internal/llm"
	"github.com/valpere/synsetran/internal/schema"
)

// DefaultSystemPrompt is the pipeline role sent ahead of every stage prompt.
const DefaultSystemPrompt = "You are an expert lexicographer helping expand WordNet into less resourced languages. " +
	"Produce faithful, idiomatic translations and keep subtle sense distinctions intact. " +
	"Return well-structured JSON."

const DefaultMaxRetries = 2

// StageCall is the record of one attempt at a stage. The accepted (or final
// failing) attempt carries the earlier rejected attempts in Rejected.
type StageCall struct {
	Stage        schema.Stage   `json:"stage"`
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"system_prompt"`
	RawResponse  string         `json:"raw_response"`
	Payload      schema.Payload `json:"payload"`
	Messages     []llm.Message  `json:"messages"`
	Attempt      int            `json:"attempt"`
	Model        string         `json:"model,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Error        string         `json:"error,omitempty"`
	Rejected     []StageCall    `json:"rejected,omitempty"`
}

// Failed reports whether the call ended with the sentinel payload.
func (c StageCall) Failed() bool {
	return c.Payload.IsSentinel()
}

// Service invokes a backend with the stage contract attached.
type Service struct {
	backend      llm.Backend
	logger       *zap.Logger
	systemPrompt string
	maxRetries   int
	retryDelay   time.Duration
}

type Option func(*Service)

// WithMaxRetries sets how many times a rejected call is repeated.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelay pauses between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) { s.retryDelay = d }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(s *Service) {
		if p != "" {
			s.systemPrompt = p
		}
	}
}

func New(backend llm.Backend, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		backend:      backend,
		logger:       logger,
		systemPrompt: DefaultSystemPrompt,
		maxRetries:   DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAttempts is the number of backend calls a single Call may make.
func (s *Service) MaxAttempts() int {
	return s.maxRetries + 1
}

// SystemPrompt renders the system message for a stage.
func (s *Service) SystemPrompt(stage schema.Stage) string {
	return s.systemPrompt + fmt.Sprintf("\nCurrent stage: %s. Return valid JSON as instructed.", stage)
}

// Call sends prompt for stage and returns the first accepted attempt. It never
// returns an error: when every attempt is rejected, or ctx is cancelled, the
// returned call carries the sentinel payload.
func (s *Service) Call(ctx context.Context, prompt string, stage schema.Stage) StageCall {
	contract, ok := schema.For(stage)
	if !ok {
		s.logger.Error("no contract for stage", zap.String("stage", string(stage)))
		return StageCall{Stage: stage, Prompt: prompt, Payload: schema.Sentinel(), Error: "unknown stage"}
	}

	system := s.SystemPrompt(stage.Base())
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt},
	}

	try := func(n int) (StageCall, bool) {
		call := s.attempt(ctx, stage, contract, prompt, system, messages, n)
		if call.Error != "" {
			s.logger.Warn("stage attempt rejected",
				zap.String("stage", string(stage)),
				zap.Int("attempt", n),
				zap.Int("max_attempts", s.MaxAttempts()),
				zap.String("reason", call.Error),
			)
			return call, false
		}
		return call, true
	}

	accepted, rejected, ok := firstAccepted(ctx, s.MaxAttempts(), s.retryDelay, try)
	if ok {
		accepted.Rejected = rejected
		return accepted
	}

	reason := schema.SentinelMessage
	if err := ctx.Err(); err != nil {
		reason = fmt.Sprintf("%s: %v", schema.SentinelMessage, err)
	}
	s.logger.Error("stage exhausted retries",
		zap.String("stage", string(stage)),
		zap.Int("attempts", len(rejected)),
		zap.String("reason", reason),
	)

	failed := StageCall{
		Stage:        stage,
		Prompt:       prompt,
		SystemPrompt: system,
		Payload:      schema.Sentinel(),
		Messages:     messages,
		Attempt:      len(rejected),
		Error:        reason,
		Rejected:     rejected,
	}
	if n := len(rejected); n > 0 {
		failed.RawResponse = rejected[n-1].RawResponse
		failed.Model = rejected[n-1].Model
	}
	return failed
}

func (s *Service) attempt(ctx context.Context, stage schema.Stage, contract schema.Contract, prompt, system string, messages []llm.Message, n int) StageCall {
	call := StageCall{
		Stage:        stage,
		Prompt:       prompt,
		SystemPrompt: system,
		Messages:     append([]llm.Message(nil), messages...),
		Attempt:      n,
	}

	start := time.Now()
	resp, err := s.backend.Invoke(ctx, messages)
	call.Duration = time.Since(start)
	if err != nil {
		call.Payload = contract.Defaults()
		call.Error = fmt.Sprintf("backend error: %v", err)
		return call
	}

	call.RawResponse = resp.Text()
	call.Model = resp.Model
	decoded := decode.Payload(call.RawResponse)
	call.Payload = schema.Validate(decoded, contract, s.logger)
	if !contract.Answered(decoded, call.Payload) {
		call.Error = "payload carries no data"
	}
	return call
}

// firstAccepted runs try for attempts 1..attempts and returns the first accepted
// value together with every rejected one before it. A cancelled ctx ends the
// sequence early with ok=false.
func firstAccepted(ctx context.Context, attempts int, delay time.Duration, try func(n int) (StageCall, bool)) (StageCall, []StageCall, bool) {
	var rejected []StageCall
	for n := 1; n <= attempts; n++ {
		if n > 1 && !wait(ctx, delay) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		call, ok := try(n)
		if ok {
			return call, rejected, true
		}
		rejected = append(rejected, call)
	}
	return StageCall{}, rejected, false
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
