// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

var (
	tracer = otel.Tracer("modelcheck.search")
	meter  = otel.Meter("modelcheck.search")
)

var (
	checkLatency metric.Float64Histogram
	checkTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		checkLatency, err = meter.Float64Histogram(
			"search_check_duration_seconds",
			metric.WithDescription("Duration of path existence checks"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		checkTotal, err = meter.Int64Counter(
			"search_check_total",
			metric.WithDescription("Total number of path existence checks"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCheckMetrics records latency and outcome of one check.
func recordCheckMetrics(ctx context.Context, duration time.Duration, code result.Code) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("result_code", code.String()))
	checkLatency.Record(ctx, duration.Seconds(), attrs)
	checkTotal.Add(ctx, 1, attrs)
}

// startCheckSpan creates a span for a path existence check.
func startCheckSpan(ctx context.Context, target string, polarity influence.Sign) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.CheckPathExistence",
		trace.WithAttributes(
			attribute.String("search.target", target),
			attribute.Int("search.polarity", int(polarity)),
		),
	)
}

// setCheckSpanResult sets the result attributes on a check span.
func setCheckSpanResult(span trace.Span, pr *result.PathResult) {
	span.SetAttributes(
		attribute.String("search.result_code", pr.ResultCode.String()),
		attribute.Bool("search.path_found", pr.PathFound),
		attribute.Int("search.metric_count", len(pr.PathMetrics)),
		attribute.Int("search.path_count", len(pr.Paths)),
	)
}
