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

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
	"github.com/AleutianAI/modelcheck/services/modelcheck/search"
)

// handler checks one query of a specific kind.
type handler func(ctx context.Context, c *Checker, q Query, b bounds) (*result.PathResult, error)

// newRegistry returns the query-kind handler table.
func newRegistry() map[QueryKind]handler {
	return map[QueryKind]handler{
		KindAddModification:    modificationHandler(influence.Positive),
		KindRemoveModification: modificationHandler(influence.Negative),
		KindActivation:         regulationHandler(influence.Positive),
		KindInhibition:         regulationHandler(influence.Negative),
		KindIncreaseAmount:     regulationHandler(influence.Positive),
		KindDecreaseAmount:     regulationHandler(influence.Negative),
	}
}

// modificationHandler checks modification queries. An empty subject means
// any upstream rule may explain the modification.
func modificationHandler(polarity influence.Sign) handler {
	return func(ctx context.Context, c *Checker, q Query, b bounds) (*result.PathResult, error) {
		if q.Subject != "" && !c.resolver.Known(q.Subject) {
			return result.New(false, result.SubjectNodesNotFound, b.maxPaths, b.maxPathLength), nil
		}
		return c.checkObservables(ctx, q, polarity, b)
	}
}

// regulationHandler checks activity and amount regulation queries, which
// always name a subject.
func regulationHandler(polarity influence.Sign) handler {
	return func(ctx context.Context, c *Checker, q Query, b bounds) (*result.PathResult, error) {
		if q.Subject == "" || !c.resolver.Known(q.Subject) {
			return result.New(false, result.SubjectNodesNotFound, b.maxPaths, b.maxPathLength), nil
		}
		return c.checkObservables(ctx, q, polarity, b)
	}
}

// checkObservables tries every readout of the query object in turn.
//
// The first explained result wins. Without one, a MAX_PATH_LENGTH_EXCEEDED
// result is preferred because it tells the caller a retry with a larger
// bound may succeed; otherwise the last result is returned.
func (c *Checker) checkObservables(ctx context.Context, q Query, polarity influence.Sign, b bounds) (*result.PathResult, error) {
	targets := c.index.Observables(q.Object)
	if len(targets) == 0 {
		return result.New(false, result.ObservablesNotFound, b.maxPaths, b.maxPathLength), nil
	}

	var sources []string
	if q.Subject != "" {
		sources = c.resolver.InputRules(q.Subject)
		if len(sources) == 0 {
			return result.New(false, result.InputRulesNotFound, b.maxPaths, b.maxPathLength), nil
		}
	}

	var last, exceeded *result.PathResult
	for _, target := range targets {
		pr, err := c.findPaths(ctx, sources, target, polarity, b)
		if err != nil {
			return nil, err
		}
		if pr.Explained() {
			return pr, nil
		}
		if pr.ResultCode == result.MaxPathLengthExceeded && exceeded == nil {
			exceeded = pr
		}
		last = pr
	}
	if exceeded != nil {
		return exceeded, nil
	}
	return last, nil
}

// findPaths runs the configured path engine. nil sources means any rule.
//
// The sampler only sees walks within the bound, so when it finds nothing
// the breadth-first verdict is returned instead. That keeps
// MAX_PATH_LENGTH_EXCEEDED and MAX_PATHS_ZERO identical across engines.
func (c *Checker) findPaths(ctx context.Context, sources []string, target string, polarity influence.Sign, b bounds) (*result.PathResult, error) {
	var set search.NodeSet
	if sources != nil {
		set = search.NewNodeSet(sources...)
	}
	if c.sampler == nil {
		return c.engine.CheckPathExistence(ctx, set, target, polarity, b.maxPaths, b.maxPathLength)
	}

	pr, err := c.sampler.SamplePaths(ctx, sources, target, polarity, b.maxPaths, b.maxPathLength)
	if err != nil || pr.ResultCode != result.NoPathsFound {
		return pr, err
	}
	return c.engine.CheckPathExistence(ctx, set, target, polarity, b.maxPaths, b.maxPathLength)
}
