// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives one end-to-end refinement: a baseline answer, the
// MCTS search and a final rating of both answers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/mctsrefine/services/refine/judge"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultQuestion is used when a request carries no question.
	DefaultQuestion = "A man and a goat are on one side of a river. They have a boat. How can they go across?"

	// DefaultReference is the ground truth for DefaultQuestion.
	DefaultReference = "They can use the boat."
)

var (
	// ErrNilJudge is returned when a Runner is built without a judge.
	ErrNilJudge = errors.New("runner: judge must not be nil")
)

// Recorder persists finished runs.
type Recorder interface {
	Save(ctx context.Context, result *Result) error
}

// Screener rejects questions that must not be sent to the judge.
type Screener interface {
	Check(text string) error
}

// Request describes one refinement.
type Request struct {
	Question  string `json:"question" validate:"max=8000"`
	Reference string `json:"reference,omitempty" validate:"max=8000"`

	// Iterations and MaxChildren override the runner's search config when non-nil.
	Iterations  *int `json:"iterations,omitempty" validate:"omitempty,gte=0,lte=200"`
	MaxChildren *int `json:"max_children,omitempty" validate:"omitempty,gte=0,lte=20"`

	// OnIteration, if set, receives every iteration event as it happens.
	OnIteration mcts.Listener `json:"-"`
}

// Result is the outcome of one refinement.
type Result struct {
	RunID         string                `json:"run_id"`
	Question      string                `json:"question"`
	Vanilla       string                `json:"vanilla"`
	Refined       string                `json:"refined"`
	Reference     string                `json:"reference,omitempty"`
	VanillaRating *int                  `json:"vanilla_rating"`
	RefinedRating *int                  `json:"refined_rating"`
	Config        mcts.Config           `json:"config"`
	Snapshot      mcts.TreeSnapshot     `json:"snapshot"`
	Events        []mcts.IterationEvent `json:"events"`
	StartedAt     time.Time             `json:"started_at"`
	Duration      time.Duration         `json:"duration"`
}

// Runner executes refinements against a judge.
//
// Thread Safety: Safe for concurrent use. Every Run builds its own tree.
type Runner struct {
	judge    judge.Judge
	logger   *slog.Logger
	tracer   *mcts.Tracer
	recorder Recorder
	screener Screener
	seeds    []string

	mu     sync.RWMutex
	config mcts.Config
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder persists every successful run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithScreener checks every question before the first judge call.
func WithScreener(s Screener) Option {
	return func(r *Runner) {
		r.screener = s
	}
}

// WithSeeds replaces the root seed answers.
func WithSeeds(seeds []string) Option {
	return func(r *Runner) {
		if len(seeds) > 0 {
			r.seeds = seeds
		}
	}
}

// WithTracing enables or disables search spans.
func WithTracing(enabled bool) Option {
	return func(r *Runner) {
		r.tracer = mcts.NewTracer(r.logger, enabled)
	}
}

// New creates a Runner.
//
// Inputs:
//   - j: Judge used for the baseline, the search and the final rating.
//   - config: Default search parameters. Validated here.
//   - opts: Optional configuration.
//
// Outputs:
//   - *Runner: Ready to use.
//   - error: ErrNilJudge or mcts.ErrInvalidConfig.
func New(j judge.Judge, config mcts.Config, opts ...Option) (*Runner, error) {
	if j == nil {
		return nil, ErrNilJudge
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		judge:  j,
		config: config,
		logger: slog.Default(),
		seeds:  mcts.DefaultSeedAnswers,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = mcts.NewTracer(r.logger, true)
	}
	return r, nil
}

// Config returns the current default search parameters.
func (r *Runner) Config() mcts.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// SetConfig swaps the default search parameters for subsequent runs.
func (r *Runner) SetConfig(config mcts.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.config = config
	r.mu.Unlock()
	return nil
}

// Run answers the question directly, refines that answer with MCTS and
// rates both.
//
// Description:
//
//	A reference containing \boxed{...} is reduced to the boxed content.
//	An empty question selects DefaultQuestion, and with it DefaultReference
//	when no reference is given. Judge failures in the baseline or rating
//	steps are logged and leave the corresponding field empty or nil.
//
// Outputs:
//   - *Result: The finished run.
//   - error: Invalid overrides, a screener rejection, search errors
//     (including mcts.ErrEmptyResult) or context cancellation.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	config, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	question := strings.TrimSpace(req.Question)
	reference := ReferenceFrom(req.Reference)
	if question == "" {
		question = DefaultQuestion
		if reference == "" {
			reference = DefaultReference
		}
	}
	if r.screener != nil {
		if err := r.screener.Check(question); err != nil {
			r.logger.Warn("question rejected by screener", slog.String("error", err.Error()))
			return nil, err
		}
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Question:  question,
		Reference: reference,
		Config:    config,
		StartedAt: started.UTC(),
	}
	logger := r.logger.With(slog.String("run_id", result.RunID))

	vanilla, err := r.judge.Answer(ctx, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("baseline answer failed", slog.String("error", err.Error()))
	}
	result.Vanilla = vanilla

	listener := func(e mcts.IterationEvent) {
		result.Events = append(result.Events, e)
		if req.OnIteration != nil {
			req.OnIteration(e)
		}
	}

	tree, err := mcts.New(question, r.seeds, r.judge, config,
		mcts.WithLogger(logger),
		mcts.WithTracer(r.tracer),
		mcts.WithListener(listener))
	if err != nil {
		return nil, err
	}

	refined, err := tree.Search(ctx)
	result.Snapshot = tree.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", result.RunID, err)
	}
	result.Refined = refined

	if err := r.evaluate(ctx, logger, result); err != nil {
		return nil, err
	}
	result.Duration = time.Since(started)

	if r.recorder != nil {
		if err := r.recorder.Save(ctx, result); err != nil {
			logger.Warn("failed to record run", slog.String("error", err.Error()))
		}
	}

	logger.Info("refinement complete",
		slog.Int("nodes", result.Snapshot.TotalNodes),
		slog.Any("vanilla_rating", ratingAttr(result.VanillaRating)),
		slog.Any("refined_rating", ratingAttr(result.RefinedRating)),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// resolve merges request overrides into the runner's config.
func (r *Runner) resolve(req Request) (mcts.Config, error) {
	config := r.Config()
	if req.Iterations != nil {
		config.Iterations = *req.Iterations
	}
	if req.MaxChildren != nil {
		config.MaxChildren = *req.MaxChildren
	}
	if err := config.Validate(); err != nil {
		return mcts.Config{}, err
	}
	return config, nil
}

// evaluate rates the vanilla and refined answers concurrently.
func (r *Runner) evaluate(ctx context.Context, logger *slog.Logger, result *Result) error {
	g, gctx := errgroup.WithContext(ctx)

	rate := func(label, answer string, dst **int) {
		g.Go(func() error {
			text, err := r.judge.Score(gctx, result.Question, answer)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("rating failed",
					slog.String("answer", label),
					slog.String("error", err.Error()))
				return nil
			}
			if n, ok := mcts.ParseRating(text); ok {
				*dst = &n
			}
			return nil
		})
	}
	rate("vanilla", result.Vanilla, &result.VanillaRating)
	rate("refined", result.Refined, &result.RefinedRating)

	return g.Wait()
}

func ratingAttr(n *int) any {
	if n == nil {
		return "none"
	}
	return *n
}
