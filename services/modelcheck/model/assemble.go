// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/observables"
)

// AssembleOptions controls graph construction.
type AssembleOptions struct {
	// Prune removes mirrored rule pairs before freezing.
	Prune bool

	// ConflictPolicy resolves parallel edges with disagreeing signs.
	ConflictPolicy influence.ConflictPolicy

	// MaxNodes and MaxEdges cap the graph. Zero keeps the graph defaults.
	MaxNodes int
	MaxEdges int

	// Logger for assembly diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// PruneReport counts what assembly removed from the raw graph.
type PruneReport struct {
	SelfLoops          int `json:"self_loops" yaml:"self_loops"`
	ParameterNodes     int `json:"parameter_nodes" yaml:"parameter_nodes"`
	NontransitiveEdges int `json:"nontransitive_edges" yaml:"nontransitive_edges"`
}

// Total returns the number of removed elements.
func (r PruneReport) Total() int {
	return r.SelfLoops + r.ParameterNodes + r.NontransitiveEdges
}

// Assembly is everything the checker needs for one model.
type Assembly struct {
	Name           string
	Graph          *influence.Graph
	Index          *observables.Index
	Resolver       *observables.Resolver
	RuleObjects    map[string]string
	InitialAmounts map[string]float64
	Queries        []checker.Query
	Pruned         PruneReport

	// Generation counts provider rebuilds. Zero for direct Assemble calls.
	Generation uint64
	BuiltAt    time.Time
}

// NewChecker creates a checker over the assembly with its abundances.
func (a *Assembly) NewChecker(opts ...checker.Option) (*checker.Checker, error) {
	all := append([]checker.Option{checker.WithAbundances(a.RuleObjects, a.InitialAmounts)}, opts...)
	return checker.New(a.Graph, a.Index, a.Resolver, all...)
}

// Assemble builds a frozen influence graph and its indexes from f.
//
// Description:
//
//	Adds parameters and rules as nodes and every influence as an edge,
//	then removes self-loops and parameter nodes. With opts.Prune set,
//	mirrored rule pairs are removed as well. The graph is frozen before
//	the observable index is derived from it.
//
// Outputs:
//
//	*Assembly - The assembled model. Graph is frozen.
//	error - Graph capacity errors, or a sign resolution error while
//	        indexing observables.
func (f *File) Assemble(ctx context.Context, opts AssembleOptions) (*Assembly, error) {
	_, span := tracer.Start(ctx, "model.Assemble")
	defer span.End()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gopts := []influence.GraphOption{
		influence.WithConflictPolicy(opts.ConflictPolicy),
		influence.WithLogger(logger),
	}
	if opts.MaxNodes > 0 {
		gopts = append(gopts, influence.WithMaxNodes(opts.MaxNodes))
	}
	if opts.MaxEdges > 0 {
		gopts = append(gopts, influence.WithMaxEdges(opts.MaxEdges))
	}
	g := influence.NewGraph(gopts...)

	fail := func(err error) (*Assembly, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		return nil, err
	}

	for _, id := range append(append([]string{}, f.Rules...), f.Parameters...) {
		if _, err := g.AddNode(id); err != nil {
			return fail(fmt.Errorf("adding node %s: %w", id, err))
		}
	}
	for _, in := range f.Influences {
		sign := influence.Unsigned
		if in.Sign != nil {
			sign = influence.SignOf(*in.Sign)
		}
		if err := g.AddEdge(in.From, in.To, sign); err != nil {
			return fail(fmt.Errorf("adding influence %s -> %s: %w", in.From, in.To, err))
		}
	}

	var report PruneReport
	var err error
	if report.SelfLoops, err = g.RemoveSelfLoops(); err != nil {
		return fail(err)
	}
	if report.ParameterNodes, err = g.RemoveParameterNodes(f.Parameters); err != nil {
		return fail(err)
	}
	if opts.Prune {
		if report.NontransitiveEdges, err = g.PruneNontransitivePairs(); err != nil {
			return fail(err)
		}
	}
	g.Freeze()

	prunedEdges.WithLabelValues("self_loop").Add(float64(report.SelfLoops))
	prunedEdges.WithLabelValues("parameter_node").Add(float64(report.ParameterNodes))
	prunedEdges.WithLabelValues("nontransitive").Add(float64(report.NontransitiveEdges))

	index, err := observables.FromGraph(g, f.Observables)
	if err != nil {
		return fail(err)
	}

	resolver := observables.NewResolver()
	for _, name := range slices.Sorted(maps.Keys(f.Agents)) {
		a := f.Agents[name]
		resolver.Add(name, a.Rules, a.SubjectOf)
	}

	a := &Assembly{
		Name:           f.Name,
		Graph:          g,
		Index:          index,
		Resolver:       resolver,
		RuleObjects:    maps.Clone(f.RuleObjects),
		InitialAmounts: maps.Clone(f.InitialAmounts),
		Queries:        f.CheckerQueries(),
		Pruned:         report,
		BuiltAt:        time.Now(),
	}

	stats := g.Stats()
	span.SetAttributes(
		attribute.String("model.name", f.Name),
		attribute.Int("graph.nodes", stats.NodeCount),
		attribute.Int("graph.edges", stats.EdgeCount),
		attribute.Int("graph.pruned", report.Total()),
	)
	logger.Info("model assembled",
		slog.String("model", f.Name),
		slog.Int("nodes", stats.NodeCount),
		slog.Int("edges", stats.EdgeCount),
		slog.Int("unsigned_edges", stats.UnsignedEdges),
		slog.Int("self_loops_removed", report.SelfLoops),
		slog.Int("parameters_removed", report.ParameterNodes),
		slog.Int("nontransitive_removed", report.NontransitiveEdges),
	)
	return a, nil
}
