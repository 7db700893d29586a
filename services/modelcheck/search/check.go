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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// CheckPathExistence decides whether any source explains target with the
// requested polarity and collects witnesses.
//
// Description:
//
//	Runs FindSources first to gather metrics. With no metrics the verdict
//	is NO_PATHS_FOUND. With metrics and maxPaths == 0 it is MAX_PATHS_ZERO.
//	If the shortest metric is longer than maxPathLength the verdict is
//	MAX_PATH_LENGTH_EXCEEDED with path_found set and the metrics attached:
//	an explanation exists but only beyond the bound, so no paths are
//	enumerated. Otherwise it is PATHS_FOUND with up to maxPaths oriented
//	paths, shortest first, none longer than maxPathLength.
//
//	Identical metrics from different witnessing edges are reported once.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	sources - Candidate sources; nil matches any rule.
//	target - The observable rule.
//	polarity - Positive or Negative.
//	maxPaths - Number of explicit paths to return. Must be >= 0.
//	maxPathLength - Maximum edges per path. Must be >= 0.
//
// Outputs:
//
//	*result.PathResult - The verdict. Never nil when error is nil.
//	error - ErrInvalidPolarity, ErrInvalidBound, a graph sign error, or
//	        the context error.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) CheckPathExistence(
	ctx context.Context,
	sources NodeSet,
	target string,
	polarity influence.Sign,
	maxPaths, maxPathLength int,
) (*result.PathResult, error) {
	if maxPaths < 0 || maxPathLength < 0 {
		return nil, fmt.Errorf("%w: max_paths=%d max_path_length=%d", ErrInvalidBound, maxPaths, maxPathLength)
	}

	start := time.Now()
	ctx, span := startCheckSpan(ctx, target, polarity)
	defer span.End()

	metrics, err := e.collectMetrics(ctx, sources, target, polarity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pr := result.New(true, result.PathsFound, maxPaths, maxPathLength)
	pr.PathMetrics = metrics
	best, ok := pr.ShortestMetric()
	switch {
	case !ok:
		pr = result.New(false, result.NoPathsFound, maxPaths, maxPathLength)
	case maxPaths == 0:
		pr.ResultCode = result.MaxPathsZero
	case best.Length > maxPathLength:
		pr.ResultCode = result.MaxPathLengthExceeded
	default:
		if err := e.collectPaths(ctx, pr, sources, target, polarity); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	setCheckSpanResult(span, pr)
	recordCheckMetrics(ctx, time.Since(start), pr.ResultCode)
	e.logger.Debug("path existence checked",
		slog.String("target", target),
		slog.String("polarity", polarity.String()),
		slog.String("result_code", pr.ResultCode.String()),
		slog.Int("metrics", len(pr.PathMetrics)),
		slog.Int("paths", len(pr.Paths)),
	)
	return pr, nil
}

// collectMetrics drains FindSources into unique path metrics.
func (e *Engine) collectMetrics(ctx context.Context, sources NodeSet, target string, polarity influence.Sign) ([]result.PathMetric, error) {
	var metrics []result.PathMetric
	seen := make(map[result.PathMetric]struct{})
	for hit, err := range e.FindSources(target, sources, polarity, WithContext(ctx)) {
		if err != nil {
			return nil, fmt.Errorf("finding sources of %s: %w", target, err)
		}
		m := result.PathMetric{
			Source:   hit.Source,
			Target:   target,
			Polarity: hit.Polarity,
			Length:   hit.Length,
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// collectPaths enumerates up to pr.MaxPaths oriented paths into pr.
func (e *Engine) collectPaths(ctx context.Context, pr *result.PathResult, sources NodeSet, target string, polarity influence.Sign) error {
	paths := e.FindSourcesWithPaths(target, sources, polarity,
		WithContext(ctx),
		WithMaxLength(pr.MaxPathLength),
	)
	for path, err := range paths {
		if err != nil {
			return fmt.Errorf("enumerating paths to %s: %w", target, err)
		}
		oriented, err := Orient(path)
		if err != nil {
			return err
		}
		if oriented.Len() > pr.MaxPathLength {
			break
		}
		pr.AddPath(oriented)
		if len(pr.Paths) >= pr.MaxPaths {
			break
		}
	}
	return nil
}
