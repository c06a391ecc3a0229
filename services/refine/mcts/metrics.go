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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.refine.mcts")

// Metrics for answer refinement searches.
var (
	iterationsTotal   metric.Int64Counter
	nodesCreated      metric.Int64Counter
	judgeFailures     metric.Int64Counter
	rewardHistogram   metric.Float64Histogram
	searchDuration    metric.Float64Histogram
	searchTreeNodes   metric.Int64Histogram
	unparsedRatings   metric.Int64Counter
	searchesCompleted metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		iterationsTotal, err = meter.Int64Counter(
			"mcts_refine_iterations_total",
			metric.WithDescription("Total search iterations run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Counter(
			"mcts_refine_nodes_created_total",
			metric.WithDescription("Total refinement nodes created by expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		judgeFailures, err = meter.Int64Counter(
			"mcts_refine_judge_failures_total",
			metric.WithDescription("Judge calls that failed and were degraded"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unparsedRatings, err = meter.Int64Counter(
			"mcts_refine_unparsed_ratings_total",
			metric.WithDescription("Score responses without a parseable rating"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rewardHistogram, err = meter.Float64Histogram(
			"mcts_refine_reward",
			metric.WithDescription("Reward produced by each simulation"),
			metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchDuration, err = meter.Float64Histogram(
			"mcts_refine_search_duration_seconds",
			metric.WithDescription("Wall time of a complete search"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchTreeNodes, err = meter.Int64Histogram(
			"mcts_refine_tree_nodes",
			metric.WithDescription("Node count of finished trees"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchesCompleted, err = meter.Int64Counter(
			"mcts_refine_searches_total",
			metric.WithDescription("Completed searches by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordIteration records one finished iteration and its reward.
//
// Thread Safety: Safe for concurrent use.
func RecordIteration(ctx context.Context, expanded bool, reward float64) {
	if err := initMetrics(); err != nil {
		return
	}
	iterationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("expanded", expanded)))
	if expanded {
		nodesCreated.Add(ctx, 1)
	}
	rewardHistogram.Record(ctx, reward)
}

// RecordJudgeFailure records a degraded judge call.
//
// Inputs:
//   - ctx: Context for metric recording.
//   - operation: One of "critique", "improve", "score".
//
// Thread Safety: Safe for concurrent use.
func RecordJudgeFailure(ctx context.Context, operation string) {
	if err := initMetrics(); err != nil {
		return
	}
	judgeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordUnparsedRating records a score response without a rating.
//
// Thread Safety: Safe for concurrent use.
func RecordUnparsedRating(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	unparsedRatings.Add(ctx, 1)
}

// RecordSearch records metrics at search completion.
//
// Thread Safety: Safe for concurrent use.
func RecordSearch(ctx context.Context, nodes int, duration time.Duration, err error) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	searchesCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	searchDuration.Record(ctx, duration.Seconds())
	searchTreeNodes.Record(ctx, int64(nodes))
}
