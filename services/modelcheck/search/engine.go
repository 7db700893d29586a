// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search finds sign-consistent paths in an influence graph.
//
// The engine walks backward from a target rule, multiplying edge signs as it
// goes, so the polarity carried at each visited node is the sign of its
// effect on the target. Traversals are breadth-first, which makes the first
// hit for any (source, polarity) the shortest such walk.
//
// # Thread Safety
//
// An Engine holds no mutable state. Any number of goroutines may search the
// same frozen graph concurrently.
package search

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
)

// contextCheckInterval is how many dequeues pass between context checks.
const contextCheckInterval = 100

// NodeSet is a set of candidate source rules. A nil NodeSet matches every
// rule.
type NodeSet map[string]struct{}

// NewNodeSet returns a set containing ids. With no ids it returns an empty,
// non-nil set that matches nothing.
func NewNodeSet(ids ...string) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id qualifies as a source.
func (s NodeSet) Has(id string) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// SourceHit is one witness found by FindSources: a walk of Length edges from
// Source to the target with accumulated sign Polarity.
type SourceHit struct {
	Source   string
	Polarity influence.Sign
	Length   int
}

// state is a (node, polarity) pair, the unit of cycle avoidance.
type state struct {
	node     string
	polarity influence.Sign
}

// queueItem is a BFS frontier entry.
type queueItem struct {
	state
	depth int
}

// Engine runs path searches over one influence graph.
type Engine struct {
	graph  *influence.Graph
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over g.
//
// Description:
//
//	The graph should be frozen; the engine never mutates it. A graph with
//	no nodes is rejected because every query against it would be
//	meaningless.
//
// Errors:
//
//	ErrNilGraph - g is nil
//	ErrEmptyGraph - g has no nodes
func NewEngine(g *influence.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if g.NodeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	e := &Engine{graph: g, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the graph the engine searches.
func (e *Engine) Graph() *influence.Graph {
	return e.graph
}

// SearchOptions bounds a single traversal.
type SearchOptions struct {
	// MaxLength is the maximum number of edges a yielded path may have.
	// 0 means unbounded.
	MaxLength int

	// Ctx is polled during traversal; cancellation ends the sequence with
	// the context error. Default: context.Background()
	Ctx context.Context
}

// SearchOption is a functional option for a traversal.
type SearchOption func(*SearchOptions)

// WithMaxLength bounds the number of edges of yielded paths. Values <= 0
// leave the traversal unbounded.
func WithMaxLength(n int) SearchOption {
	return func(o *SearchOptions) {
		if n < 0 {
			n = 0
		}
		o.MaxLength = n
	}
}

// WithContext makes the traversal observe ctx.
func WithContext(ctx context.Context) SearchOption {
	return func(o *SearchOptions) {
		if ctx != nil {
			o.Ctx = ctx
		}
	}
}

func applySearchOptions(opts []SearchOption) SearchOptions {
	options := SearchOptions{Ctx: context.Background()}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
