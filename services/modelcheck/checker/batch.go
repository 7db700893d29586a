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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// Report is the result of checking a batch of queries.
type Report struct {
	// RunID identifies the batch in logs and traces.
	RunID string `json:"run_id" yaml:"run_id"`

	// Outcomes are in the same order as the input queries.
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`

	// Duration is the wall time of the batch.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Explained returns how many outcomes are explained within their bounds.
func (r *Report) Explained() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result != nil && o.Result.Explained() {
			n++
		}
	}
	return n
}

// CountByCode tallies outcomes by result code.
func (r *Report) CountByCode() map[result.Code]int {
	counts := make(map[result.Code]int)
	for _, o := range r.Outcomes {
		if o.Result != nil {
			counts[o.Result.ResultCode]++
		}
	}
	return counts
}

// CheckModel checks every query concurrently.
//
// Description:
//
//	Queries share only the frozen graph, so they fan out over a worker
//	pool bounded by Options.Workers. The first error cancels the remaining
//	queries and is returned. Each batch gets a fresh run ID.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	queries - Queries to check. May be empty.
//
// Outputs:
//
//	*Report - Outcomes in input order. Nil on error.
//	error - The first query error, or the context error.
func (c *Checker) CheckModel(ctx context.Context, queries []Query) (*Report, error) {
	runID := uuid.NewString()
	start := time.Now()
	logger := c.logger.With(slog.String("run_id", runID))

	ctx, span := tracer.Start(ctx, "Checker.CheckModel")
	defer span.End()
	span.SetAttributes(
		attribute.String("checker.run_id", runID),
		attribute.Int("checker.query_count", len(queries)),
	)

	outcomes := make([]Outcome, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.options.Workers)

	for i, q := range queries {
		g.Go(func() error {
			pr, err := c.CheckQuery(gctx, q)
			if err != nil {
				return err
			}
			outcomes[i] = Outcome{Query: q, Result: pr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		logger.Error("model check failed", slog.String("error", err.Error()))
		return nil, err
	}

	report := &Report{RunID: runID, Outcomes: outcomes, Duration: time.Since(start)}
	span.SetAttributes(attribute.Int("checker.explained", report.Explained()))
	logger.Info("model check complete",
		slog.Int("queries", len(queries)),
		slog.Int("explained", report.Explained()),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}
