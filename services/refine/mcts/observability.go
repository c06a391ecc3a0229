// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "aleutian.refine.mcts"

// Tracer provides OpenTelemetry tracing for searches.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for slog.Default).
//   - enabled: When false every span is a no-op.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartSearch starts a span for a whole search.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (a no-op span when disabled).
func (t *Tracer) StartSearch(ctx context.Context, question string, config Config) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "mcts.search",
		trace.WithAttributes(
			attribute.String("mcts.question", truncate(question, 100)),
			attribute.Int("mcts.iterations", config.Iterations),
			attribute.Int("mcts.max_children", config.MaxChildren),
			attribute.Float64("mcts.exploration_constant", config.ExplorationConstant),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.InfoContext(ctx, "MCTS search started",
		slog.String("question", truncate(question, 100)),
		slog.Int("iterations", config.Iterations),
		slog.Int("max_children", config.MaxChildren),
	)

	return ctx, span
}

// EndSearch completes the search span.
func (t *Tracer) EndSearch(span trace.Span, nodes int, best *RefinementNode, elapsed time.Duration, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Int("mcts.result.total_nodes", nodes),
		attribute.String("mcts.result.elapsed", elapsed.String()),
	)
	if best != nil {
		span.SetAttributes(
			attribute.Int("mcts.result.best_id", int(best.ID)),
			attribute.Float64("mcts.result.best_mean", best.Mean()),
		)
	}

	span.End()
}

// StartIteration starts a span for one iteration.
func (t *Tracer) StartIteration(ctx context.Context, iteration int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "mcts.iteration",
		trace.WithAttributes(attribute.Int("mcts.iteration", iteration)),
	)
}

// EndIteration annotates and ends an iteration span.
func (t *Tracer) EndIteration(span trace.Span, event IterationEvent) {
	span.SetAttributes(
		attribute.Int("mcts.selected", int(event.Selected)),
		attribute.Int("mcts.target", int(event.Target)),
		attribute.Bool("mcts.expanded", event.Expanded),
		attribute.Int("mcts.depth", event.Depth),
		attribute.Float64("mcts.reward", event.Reward),
	)
	span.End()
}

// JudgeFailed records a degraded judge call on the active span.
func (t *Tracer) JudgeFailed(ctx context.Context, operation string, err error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("judge.failure", trace.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("error", err.Error()),
	))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
