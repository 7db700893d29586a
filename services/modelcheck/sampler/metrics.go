// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

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
	tracer = otel.Tracer("modelcheck.sampler")
	meter  = otel.Meter("modelcheck.sampler")
)

var (
	sampleLatency  metric.Float64Histogram
	walkBacktracks metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sampleLatency, err = meter.Float64Histogram(
			"sampler_duration_seconds",
			metric.WithDescription("Duration of path sampling including structure build"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		walkBacktracks, err = meter.Int64Counter(
			"sampler_walk_backtracks_total",
			metric.WithDescription("Steps undone while steering walks around rules already visited with the same polarity"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSampleMetrics(ctx context.Context, duration time.Duration, code result.Code) {
	if err := initMetrics(); err != nil {
		return
	}
	sampleLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("result_code", code.String())),
	)
}

func recordBacktracks(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	walkBacktracks.Add(ctx, int64(n))
}

func startSampleSpan(ctx context.Context, target string, polarity influence.Sign, maxPaths int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Sampler.SamplePaths",
		trace.WithAttributes(
			attribute.String("sampler.target", target),
			attribute.Int("sampler.polarity", int(polarity)),
			attribute.Int("sampler.max_paths", maxPaths),
		),
	)
}

func setSampleSpanResult(span trace.Span, c *Combined, pr *result.PathResult) {
	span.SetAttributes(
		attribute.Int("sampler.vertex_count", c.VertexCount()),
		attribute.Int("sampler.edge_count", c.EdgeCount()),
		attribute.String("sampler.result_code", pr.ResultCode.String()),
		attribute.Int("sampler.path_count", len(pr.Paths)),
	)
}
