// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelcheck_queries_total",
		Help: "Total queries checked by kind and result code",
	}, []string{"kind", "result_code"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelcheck_query_errors_total",
		Help: "Total queries that failed with an error",
	}, []string{"kind"})

	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelcheck_query_duration_seconds",
		Help:    "Query check latency",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("modelcheck.checker")

func recordQuery(kind QueryKind, code result.Code, d time.Duration) {
	queriesTotal.WithLabelValues(string(kind), code.String()).Inc()
	queryLatency.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func recordQueryError(kind QueryKind) {
	queryErrors.WithLabelValues(string(kind)).Inc()
}

func startQuerySpan(ctx context.Context, q Query) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Checker.CheckQuery",
		trace.WithAttributes(
			attribute.String("checker.query_id", q.ID),
			attribute.String("checker.kind", string(q.Kind)),
			attribute.String("checker.subject", q.Subject),
			attribute.String("checker.object", q.Object),
		),
	)
}

func setQuerySpanResult(span trace.Span, pr *result.PathResult) {
	span.SetAttributes(
		attribute.String("checker.result_code", pr.ResultCode.String()),
		attribute.Bool("checker.path_found", pr.PathFound),
		attribute.Int("checker.path_count", len(pr.Paths)),
	)
}
