// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checker decides whether a model supports a set of relationships.
//
// A Checker resolves each query's subject to input rules and its object to
// readout nodes, then delegates the search to the breadth-first engine or,
// when sampling is enabled, to the weighted path sampler. Unsatisfiable
// queries are reported through result codes, not errors.
//
// # Thread Safety
//
// A Checker is immutable after New. CheckQuery and CheckModel may be called
// from multiple goroutines.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/observables"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
	"github.com/AleutianAI/modelcheck/services/modelcheck/sampler"
	"github.com/AleutianAI/modelcheck/services/modelcheck/scoring"
	"github.com/AleutianAI/modelcheck/services/modelcheck/search"
)

// Default query bounds.
const (
	// DefaultMaxPaths is the default number of explicit paths per query.
	DefaultMaxPaths = 1

	// DefaultMaxPathLength is the default maximum edges per path.
	DefaultMaxPathLength = 5

	// DefaultWorkers is the default CheckModel concurrency.
	DefaultWorkers = 4
)

// Sentinel errors for the checker.
var (
	// ErrNilInput is returned when New is missing the graph, index or
	// resolver.
	ErrNilInput = errors.New("graph, index and resolver are required")

	// ErrNotFrozen is returned when New is given a graph still being built.
	ErrNotFrozen = errors.New("graph must be frozen before checking")
)

// Options configures a Checker.
type Options struct {
	// MaxPaths is used when a query does not set one. Default: 1
	MaxPaths int

	// MaxPathLength is used when a query does not set one. Default: 5
	MaxPathLength int

	// Sampling selects the weighted sampler instead of exhaustive search.
	Sampling bool

	// Seed seeds the sampler. Zero selects a time-based seed.
	Seed uint64

	// Workers bounds CheckModel concurrency. Default: 4
	Workers int

	// RuleObjects and InitialAmounts feed sampler edge weights.
	RuleObjects    map[string]string
	InitialAmounts map[string]float64

	// Logger for check diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for configuring a Checker.
type Option func(*Options)

// WithBounds sets the default max paths and max path length.
func WithBounds(maxPaths, maxPathLength int) Option {
	return func(o *Options) {
		o.MaxPaths = maxPaths
		o.MaxPathLength = maxPathLength
	}
}

// WithSampling enables the weighted sampler with the given seed.
func WithSampling(enabled bool, seed uint64) Option {
	return func(o *Options) {
		o.Sampling = enabled
		o.Seed = seed
	}
}

// WithWorkers sets CheckModel concurrency. Values < 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n >= 1 {
			o.Workers = n
		}
	}
}

// WithAbundances sets the rule objects and initial amounts used by the
// sampler.
func WithAbundances(ruleObjects map[string]string, amounts map[string]float64) Option {
	return func(o *Options) {
		o.RuleObjects = ruleObjects
		o.InitialAmounts = amounts
	}
}

// WithLogger sets the checker logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Checker answers queries against one assembled model.
type Checker struct {
	graph    *influence.Graph
	index    *observables.Index
	resolver *observables.Resolver
	engine   *search.Engine
	sampler  *sampler.Sampler
	handlers map[QueryKind]handler
	options  Options
	logger   *slog.Logger
}

// New creates a checker.
//
// Description:
//
//	Builds the search engine, and the sampler when sampling is enabled,
//	over the frozen graph, and fills the query-kind handler table. The
//	table is never modified afterwards.
//
// Inputs:
//
//	g - Frozen influence graph with at least one node.
//	index - Condition and readout index for g.
//	resolver - Agent to input rule mapping.
//	opts - Functional options.
//
// Errors:
//
//	ErrNilInput - a required input is nil
//	ErrNotFrozen - g has not been frozen
//	search.ErrEmptyGraph - g has no nodes
func New(g *influence.Graph, index *observables.Index, resolver *observables.Resolver, opts ...Option) (*Checker, error) {
	if g == nil || index == nil || resolver == nil {
		return nil, ErrNilInput
	}
	if !g.IsFrozen() {
		return nil, ErrNotFrozen
	}

	o := Options{
		MaxPaths:      DefaultMaxPaths,
		MaxPathLength: DefaultMaxPathLength,
		Workers:       DefaultWorkers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine, err := search.NewEngine(g, search.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating search engine: %w", err)
	}

	c := &Checker{
		graph:    g,
		index:    index,
		resolver: resolver,
		engine:   engine,
		handlers: newRegistry(),
		options:  o,
		logger:   logger,
	}

	if o.Sampling {
		c.sampler, err = sampler.New(g,
			sampler.WithSeed(o.Seed),
			sampler.WithRuleObjects(o.RuleObjects),
			sampler.WithInitialAmounts(o.InitialAmounts),
			sampler.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("creating sampler: %w", err)
		}
	}
	return c, nil
}

// Handles reports whether kind has a registered handler.
func (c *Checker) Handles(kind QueryKind) bool {
	_, ok := c.handlers[kind]
	return ok
}

// CheckQuery checks one query.
//
// Description:
//
//	Dispatches on q.Kind. Unknown kinds yield STATEMENT_TYPE_NOT_HANDLED.
//	Bounds not set on the query fall back to the checker defaults.
//
// Outputs:
//
//	*result.PathResult - The verdict. Never nil when error is nil.
//	error - Configuration, sign resolution or context errors only.
//
// Thread Safety: Safe for concurrent use.
func (c *Checker) CheckQuery(ctx context.Context, q Query) (*result.PathResult, error) {
	b := c.bounds(q)
	start := time.Now()

	ctx, span := startQuerySpan(ctx, q)
	defer span.End()

	h, ok := c.handlers[q.Kind]
	var pr *result.PathResult
	if !ok {
		pr = result.New(false, result.StatementTypeNotHandled, b.maxPaths, b.maxPathLength)
	} else {
		var err error
		pr, err = h(ctx, c, q, b)
		if err != nil {
			span.RecordError(err)
			recordQueryError(q.Kind)
			return nil, fmt.Errorf("checking %s: %w", q, err)
		}
	}

	setQuerySpanResult(span, pr)
	recordQuery(q.Kind, pr.ResultCode, time.Since(start))
	c.logger.Debug("query checked",
		slog.String("query", q.String()),
		slog.String("result_code", pr.ResultCode.String()),
		slog.Bool("path_found", pr.PathFound),
	)
	return pr, nil
}

// ScorePaths ranks paths against measured values keyed by condition.
func (c *Checker) ScorePaths(paths []influence.Path, measured map[string]float64, opts ...scoring.Option) ([]scoring.Scored, error) {
	s, err := scoring.New(c.index, append([]scoring.Option{scoring.WithLogger(c.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return s.Rank(paths, measured), nil
}

// bounds are the effective limits for one query.
type bounds struct {
	maxPaths      int
	maxPathLength int
}

func (c *Checker) bounds(q Query) bounds {
	b := bounds{maxPaths: c.options.MaxPaths, maxPathLength: c.options.MaxPathLength}
	if q.MaxPaths != nil {
		b.maxPaths = *q.MaxPaths
	}
	if q.MaxPathLength != nil {
		b.maxPathLength = *q.MaxPathLength
	}
	return b
}
