// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampler draws weighted random witness paths from an influence
// graph.
//
// Exhaustive enumeration of short paths explodes on dense graphs. The
// sampler instead builds one combined structure holding every
// sign-consistent walk up to a length bound and draws walks from it, with
// edge weights taken from the initial abundances of the entities each rule
// acts on.
//
// # Thread Safety
//
// A Sampler may be shared between goroutines. The random source is guarded
// by a mutex, so concurrent draws are safe but interleave.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// Sentinel errors for sampling.
var (
	// ErrNilGraph is returned when a sampler is created without a graph.
	ErrNilGraph = errors.New("graph must not be nil")

	// ErrEmptyGraph is returned when a sampler is created over a graph
	// with no nodes.
	ErrEmptyGraph = errors.New("influence graph has no nodes")

	// ErrInvalidPolarity is returned when a polarity is not +1 or -1.
	ErrInvalidPolarity = errors.New("polarity must be +1 or -1")

	// ErrInvalidBound is returned for negative max_paths or a
	// max_path_length below 1.
	ErrInvalidBound = errors.New("invalid path bounds")

	// ErrDeadEnd indicates no walk through a non-empty structure avoids
	// repeated pairs. It signals a bug in structure construction.
	ErrDeadEnd = errors.New("walk reached a dead end")
)

// Options configures a Sampler.
type Options struct {
	// Seed seeds the random source. Zero selects a time-based seed.
	Seed uint64

	// RuleObjects maps a rule to the entity it acts on.
	RuleObjects map[string]string

	// InitialAmounts maps an entity to its initial abundance.
	InitialAmounts map[string]float64

	// Logger receives sampling diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for configuring a Sampler.
type Option func(*Options)

// WithSeed fixes the random seed so draws are reproducible.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Seed = seed
	}
}

// WithRuleObjects sets the rule to object-entity annotations.
func WithRuleObjects(m map[string]string) Option {
	return func(o *Options) {
		o.RuleObjects = m
	}
}

// WithInitialAmounts sets the entity abundances used as edge weights.
func WithInitialAmounts(m map[string]float64) Option {
	return func(o *Options) {
		o.InitialAmounts = m
	}
}

// WithLogger sets the sampler logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Sampler draws weighted walks over one frozen influence graph.
type Sampler struct {
	graph   *influence.Graph
	objects map[string]string
	amounts map[string]float64
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a sampler over g.
//
// Errors:
//
//	ErrNilGraph - g is nil
//	ErrEmptyGraph - g has no nodes
func New(g *influence.Graph, opts ...Option) (*Sampler, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if g.NodeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	seed := o.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sampler{
		graph:   g,
		objects: o.RuleObjects,
		amounts: o.InitialAmounts,
		logger:  logger,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Build constructs the weighted combined structure for one query.
//
// Description:
//
//	Attaches a virtual source with a positive edge to every input rule
//	(nil sources means every rule), computes signed level sets in both
//	directions to depth maxPathLength+1 and merges the layered graphs of
//	every length. Reported path lengths exclude the virtual edge, so they
//	range over 1..maxPathLength. maxPathLength == 0 admits no path and
//	yields an empty structure. The target is never its own source.
//
// Outputs:
//
//	*Combined - The structure; Empty() when no path exists.
//	error - ErrInvalidPolarity, ErrInvalidBound, a sign error, or the
//	        context error.
func (s *Sampler) Build(ctx context.Context, sources []string, target string, polarity influence.Sign, maxPathLength int) (*Combined, error) {
	if !polarity.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPolarity, polarity)
	}
	if maxPathLength < 0 {
		return nil, fmt.Errorf("%w: max_path_length=%d", ErrInvalidBound, maxPathLength)
	}
	if maxPathLength == 0 {
		return newCombined(target, polarity), nil
	}

	n := newNeighbours(s.graph, sources, target)
	c, err := buildCombined(ctx, n, target, polarity, maxPathLength+1)
	if err != nil {
		return nil, err
	}
	assignWeights(c, s.objects, s.amounts)
	return c, nil
}

// SamplePaths draws up to maxPaths weighted witness paths.
//
// Description:
//
//	An empty combined structure yields NO_PATHS_FOUND. maxPaths == 0 on a
//	non-empty structure yields MAX_PATHS_ZERO. Otherwise exactly maxPaths
//	walks are drawn independently, so the same path may appear more than
//	once. Each walk avoids revisiting a (rule, polarity) pair by drawing
//	only among fresh successors and backtracking at dead ends. Path metrics
//	are never populated by the sampler.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	sources - Input rules; nil means every rule.
//	target - The observable rule.
//	polarity - Positive or Negative.
//	maxPaths - Number of walks to return. Must be >= 0.
//	maxPathLength - Maximum edges per path. Must be >= 0.
//
// Outputs:
//
//	*result.PathResult - The verdict.
//	error - Bound, polarity, sign or context errors.
func (s *Sampler) SamplePaths(
	ctx context.Context,
	sources []string,
	target string,
	polarity influence.Sign,
	maxPaths, maxPathLength int,
) (*result.PathResult, error) {
	if maxPaths < 0 {
		return nil, fmt.Errorf("%w: max_paths=%d", ErrInvalidBound, maxPaths)
	}

	start := time.Now()
	ctx, span := startSampleSpan(ctx, target, polarity, maxPaths)
	defer span.End()

	c, err := s.Build(ctx, sources, target, polarity, maxPathLength)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var pr *result.PathResult
	switch {
	case c.Empty():
		pr = result.New(false, result.NoPathsFound, maxPaths, maxPathLength)
	case maxPaths == 0:
		pr = result.New(true, result.MaxPathsZero, maxPaths, maxPathLength)
	default:
		paths, backtracks, err := s.draw(ctx, c, maxPaths)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		pr = result.New(true, result.PathsFound, maxPaths, maxPathLength)
		pr.Paths = paths
		if backtracks > 0 {
			s.logger.Debug("walks backtracked around repeated rules",
				slog.String("target", target),
				slog.Int("backtracks", backtracks),
				slog.Int("paths", len(paths)),
			)
		}
		recordBacktracks(ctx, backtracks)
	}

	setSampleSpanResult(span, c, pr)
	recordSampleMetrics(ctx, time.Since(start), pr.ResultCode)
	return pr, nil
}

// draw samples maxPaths walks from c.
func (s *Sampler) draw(ctx context.Context, c *Combined, maxPaths int) ([]influence.Path, int, error) {
	paths := make([]influence.Path, 0, maxPaths)
	backtracks := 0
	for range maxPaths {
		if err := ctx.Err(); err != nil {
			return nil, backtracks, err
		}
		p, n, err := c.walk(s.pick)
		backtracks += n
		if err != nil {
			return nil, backtracks, err
		}
		paths = append(paths, p)
	}
	return paths, backtracks, nil
}

// pick draws an index from weights using the shared random source.
func (s *Sampler) pick(weights []float64) int {
	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()
	return pickWeighted(weights, r)
}
