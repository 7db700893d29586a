// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("modelcheck.influence")
	meter  = otel.Meter("modelcheck.influence")
)

var (
	pruneLatency metric.Float64Histogram
	edgesPruned  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		pruneLatency, err = meter.Float64Histogram(
			"influence_prune_duration_seconds",
			metric.WithDescription("Duration of nontransitive pair pruning"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesPruned, err = meter.Int64Counter(
			"influence_edges_pruned_total",
			metric.WithDescription("Edges removed by nontransitive pair pruning"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPruneMetrics(ctx context.Context, duration time.Duration, removed int) {
	if err := initMetrics(); err != nil {
		return
	}
	pruneLatency.Record(ctx, duration.Seconds())
	edgesPruned.Add(ctx, int64(removed))
}

func startPruneSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph.PruneNontransitivePairs",
		trace.WithAttributes(
			attribute.Int("influence.node_count", nodeCount),
		),
	)
}

func setPruneSpanResult(span trace.Span, pairs, removed int) {
	span.SetAttributes(
		attribute.Int("influence.pairs_pruned", pairs),
		attribute.Int("influence.edges_removed", removed),
	)
}
