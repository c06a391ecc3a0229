// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/mctsrefine/services/llm"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"golang.org/x/time/rate"
)

var _ mcts.Judge = (*LLMJudge)(nil)

// Config configures an LLMJudge.
type Config struct {
	// RequestsPerSecond paces model calls. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the limiter bucket size.
	Burst int `json:"burst" yaml:"burst" validate:"gte=1"`

	// Breaker guards the model client.
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

// DefaultConfig returns two requests per second with no burst.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             1,
		Breaker:           DefaultBreakerConfig(),
	}
}

// LLMJudge implements mcts.Judge on top of an LLM client.
//
// Every operation renders one prompt, sends it as a single user message and
// returns the trimmed completion. Calls are paced by a rate limiter and
// guarded by a Breaker; errors are returned unchanged for the search to
// degrade.
//
// Thread Safety: Safe for concurrent use.
type LLMJudge struct {
	client  llm.LLMClient
	params  llm.GenerationParams
	limiter *rate.Limiter
	breaker *Breaker
	logger  *slog.Logger
}

// Option configures an LLMJudge.
type Option func(*LLMJudge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *LLMJudge) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithParams sets the sampling parameters sent with every call.
func WithParams(params llm.GenerationParams) Option {
	return func(j *LLMJudge) {
		j.params = params
	}
}

// WithBreaker shares a breaker between judges.
func WithBreaker(b *Breaker) Option {
	return func(j *LLMJudge) {
		if b != nil {
			j.breaker = b
		}
	}
}

// NewLLMJudge creates a judge backed by client.
//
// Inputs:
//   - client: The model client. Must not be nil.
//   - config: Pacing and breaker settings.
//   - opts: Optional configuration.
//
// Outputs:
//   - *LLMJudge: The judge.
//   - error: ErrNilClient when client is nil.
func NewLLMJudge(client llm.LLMClient, config Config, opts ...Option) (*LLMJudge, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	j := &LLMJudge{
		client:  client,
		limiter: rate.NewLimiter(limit, max(config.Burst, 1)),
		breaker: NewBreaker(config.Breaker),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Breaker returns the breaker guarding the client.
func (j *LLMJudge) Breaker() *Breaker {
	return j.breaker
}

// Answer asks the model the bare question, without any refinement.
func (j *LLMJudge) Answer(ctx context.Context, question string) (string, error) {
	return j.generate(ctx, "answer", question)
}

// Critique implements mcts.Judge.
func (j *LLMJudge) Critique(ctx context.Context, question, answer string) (string, error) {
	prompt, err := CritiquePrompt(question, answer)
	if err != nil {
		return "", err
	}
	return j.generate(ctx, "critique", prompt)
}

// Improve implements mcts.Judge.
func (j *LLMJudge) Improve(ctx context.Context, question, answer, critique string) (string, error) {
	prompt, err := ImprovePrompt(question, answer, critique)
	if err != nil {
		return "", err
	}
	return j.generate(ctx, "improve", prompt)
}

// Score implements mcts.Judge.
func (j *LLMJudge) Score(ctx context.Context, question, answer string) (string, error) {
	prompt, err := RatingPrompt(question, answer)
	if err != nil {
		return "", err
	}
	return j.generate(ctx, "score", prompt)
}

func (j *LLMJudge) generate(ctx context.Context, operation, prompt string) (string, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: wait for rate limiter: %w", operation, err)
	}

	start := time.Now()
	var out string
	err := j.breaker.Execute(ctx, func() error {
		resp, err := j.client.Generate(ctx, prompt, j.params)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(resp)
		return nil
	})
	if err != nil {
		j.logger.Debug("judge call failed",
			slog.String("operation", operation),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("breaker", j.breaker.State().String()),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	j.logger.Debug("judge call complete",
		slog.String("operation", operation),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("response_len", len(out)))
	return out, nil
}
