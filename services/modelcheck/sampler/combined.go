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
	"fmt"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
)

// virtualSource is the synthetic root with a positive edge to every input
// rule. Rule names never contain NUL.
const virtualSource = "\x00source"

// state is a (rule, polarity) pair.
type state struct {
	node     string
	polarity influence.Sign
}

// Vertex is a node of the combined structure: a rule at a walk position
// with the polarity accumulated from the virtual source.
type Vertex struct {
	Depth    int
	Node     string
	Polarity influence.Sign
}

// levelSet is one depth of a reachability sweep, kept in discovery order.
type levelSet struct {
	order []state
	set   map[state]struct{}
}

func newLevelSet() *levelSet {
	return &levelSet{set: make(map[state]struct{})}
}

func (l *levelSet) add(s state) {
	if _, ok := l.set[s]; ok {
		return
	}
	l.set[s] = struct{}{}
	l.order = append(l.order, s)
}

func (l *levelSet) has(s state) bool {
	_, ok := l.set[s]
	return ok
}

// Combined is the union of the layered path graphs of every length up to
// the bound. Each non-terminal vertex has at least one successor and every
// walk from the root reaches a terminal. Walks may repeat a (rule,
// polarity) pair across depths; walk steers around those repeats.
type Combined struct {
	root     Vertex
	target   string
	polarity influence.Sign
	succ     map[Vertex][]Vertex
	weights  map[Vertex][]float64
	lengths  []int
}

// Empty reports whether no path of any allowed length exists.
func (c *Combined) Empty() bool {
	return c == nil || len(c.succ) == 0
}

// Lengths returns the path lengths, in edges between real rules, for which
// at least one walk exists.
func (c *Combined) Lengths() []int {
	if c == nil {
		return nil
	}
	return c.lengths
}

// VertexCount returns the number of vertices with outgoing edges.
func (c *Combined) VertexCount() int {
	if c == nil {
		return 0
	}
	return len(c.succ)
}

// EdgeCount returns the number of edges in the structure.
func (c *Combined) EdgeCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, vs := range c.succ {
		n += len(vs)
	}
	return n
}

// terminal reports whether walks stop at v. Depth 1 holds input rules, so a
// terminal there would be a zero-edge path.
func (c *Combined) terminal(v Vertex) bool {
	return v.Depth >= 2 && v.Node == c.target && v.Polarity == c.polarity
}

func newCombined(target string, polarity influence.Sign) *Combined {
	return &Combined{
		root:     Vertex{Depth: 0, Node: virtualSource, Polarity: influence.Positive},
		target:   target,
		polarity: polarity,
		succ:     make(map[Vertex][]Vertex),
		weights:  make(map[Vertex][]float64),
	}
}

// neighbours wraps the graph with the virtual source attached.
type neighbours struct {
	graph   *influence.Graph
	sources []string
	srcSet  map[string]struct{}
}

// newNeighbours attaches the virtual source to sources, or to every rule
// when sources is nil. The target is never a source of itself.
func newNeighbours(g *influence.Graph, sources []string, target string) *neighbours {
	n := &neighbours{graph: g}
	if sources == nil {
		for id := range g.Nodes() {
			if id != target {
				n.sources = append(n.sources, id)
			}
		}
	} else {
		for _, id := range sources {
			if id != target && g.HasNode(id) {
				n.sources = append(n.sources, id)
			}
		}
	}
	n.srcSet = make(map[string]struct{}, len(n.sources))
	for _, id := range n.sources {
		n.srcSet[id] = struct{}{}
	}
	return n
}

func (n *neighbours) successors(u string) []string {
	if u == virtualSource {
		return n.sources
	}
	var out []string
	for v := range n.graph.Successors(u) {
		out = append(out, v)
	}
	return out
}

func (n *neighbours) predecessors(v string) []string {
	var out []string
	for u := range n.graph.Predecessors(v) {
		out = append(out, u)
	}
	if _, ok := n.srcSet[v]; ok {
		out = append(out, virtualSource)
	}
	return out
}

func (n *neighbours) sign(u, v string) (influence.Sign, error) {
	if u == virtualSource {
		return influence.Positive, nil
	}
	return n.graph.EdgeSign(u, v)
}

// reachableSets computes signed level sets by exact walk length.
//
// Description:
//
//	forward[i] holds (rule, polarity) pairs reachable from the virtual
//	source in exactly i steps, polarity measured from the source.
//	backward[i] holds pairs that reach the target in exactly i steps,
//	polarity measured to the target. Both sweeps stop at depth maxDepth.
//	If the target is never reached forward, or the virtual source never
//	reached backward, both results are nil.
func reachableSets(ctx context.Context, n *neighbours, target string, maxDepth int) (forward, backward []*levelSet, err error) {
	forward = make([]*levelSet, maxDepth+1)
	backward = make([]*levelSet, maxDepth+1)
	forward[0] = newLevelSet()
	forward[0].add(state{node: virtualSource, polarity: influence.Positive})
	backward[0] = newLevelSet()
	backward[0].add(state{node: target, polarity: influence.Positive})

	reachedTarget, reachedSource := false, false
	for i := 0; i < maxDepth; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		forward[i+1] = newLevelSet()
		for _, s := range forward[i].order {
			for _, v := range n.successors(s.node) {
				sign, err := n.sign(s.node, v)
				if err != nil {
					return nil, nil, err
				}
				forward[i+1].add(state{node: v, polarity: s.polarity * sign})
				if v == target {
					reachedTarget = true
				}
			}
		}

		backward[i+1] = newLevelSet()
		for _, s := range backward[i].order {
			for _, u := range n.predecessors(s.node) {
				sign, err := n.sign(u, s.node)
				if err != nil {
					return nil, nil, err
				}
				backward[i+1].add(state{node: u, polarity: sign * s.polarity})
				if u == virtualSource {
					reachedSource = true
				}
			}
		}
	}

	if !reachedTarget || !reachedSource {
		return nil, nil, nil
	}
	return forward, backward, nil
}

// buildCombined assembles the union of per-length layered graphs.
//
// Description:
//
//	For each total length lp in 2..maxDepth (the first step leaves the
//	virtual source), level i holds the pairs (u, p) of forward[i] for which
//	(u, p*polarity) is in backward[lp-i]. An edge joins (i, u, p) to
//	(i+1, v, q) when the graph has u -> v with sign s and p*s == q. The
//	per-length graphs are merged on (depth, rule, polarity).
func buildCombined(ctx context.Context, n *neighbours, target string, polarity influence.Sign, maxDepth int) (*Combined, error) {
	c := newCombined(target, polarity)

	forward, backward, err := reachableSets(ctx, n, target, maxDepth)
	if err != nil {
		return nil, err
	}
	if forward == nil {
		return c, nil
	}

	seenEdge := make(map[[2]Vertex]struct{})
	for lp := 2; lp <= maxDepth; lp++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !backward[lp].has(state{node: virtualSource, polarity: polarity}) {
			continue
		}

		levels := make([]*levelSet, lp+1)
		for i := 0; i <= lp; i++ {
			levels[i] = newLevelSet()
			for _, s := range forward[i].order {
				if backward[lp-i].has(state{node: s.node, polarity: s.polarity * polarity}) {
					levels[i].add(s)
				}
			}
		}

		added := false
		for i := 0; i < lp; i++ {
			for _, s := range levels[i].order {
				for _, v := range n.successors(s.node) {
					sign, err := n.sign(s.node, v)
					if err != nil {
						return nil, err
					}
					next := state{node: v, polarity: s.polarity * sign}
					if !levels[i+1].has(next) {
						continue
					}
					from := Vertex{Depth: i, Node: s.node, Polarity: s.polarity}
					to := Vertex{Depth: i + 1, Node: next.node, Polarity: next.polarity}
					key := [2]Vertex{from, to}
					if _, dup := seenEdge[key]; dup {
						continue
					}
					seenEdge[key] = struct{}{}
					c.succ[from] = append(c.succ[from], to)
					added = true
				}
			}
		}
		if added {
			c.lengths = append(c.lengths, lp-1)
		}
	}
	return c, nil
}

// walkFrame is one vertex on the walk stack with the successor indexes
// not yet tried from it.
type walkFrame struct {
	vertex  Vertex
	pending []int
}

// walk draws one weighted walk from the root to a terminal that never
// repeats a (rule, polarity) pair.
//
// Description:
//
//	At each vertex the next step is drawn among successors whose pair is not
//	already on the walk, with pick receiving only their weights. A vertex
//	whose successors are all exhausted is popped and the draw resumes at its
//	parent without the exhausted branch. Any walk in the structure can be
//	shortened to one without repeats, so a non-empty structure always
//	yields a path.
//
// Outputs:
//
//	influence.Path - The walk without the virtual source.
//	int - Number of backtracking steps taken.
//	error - ErrDeadEnd if the root is exhausted.
func (c *Combined) walk(pick func([]float64) int) (influence.Path, int, error) {
	onWalk := make(map[state]struct{})
	stack := []walkFrame{c.frame(c.root, onWalk)}
	backtracks := 0

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if c.terminal(top.vertex) {
			path := make(influence.Path, 0, len(stack)-1)
			for _, f := range stack[1:] {
				path = append(path, influence.Step{Node: f.vertex.Node, Polarity: f.vertex.Polarity})
			}
			return path, backtracks, nil
		}

		if len(top.pending) == 0 {
			delete(onWalk, state{node: top.vertex.Node, polarity: top.vertex.Polarity})
			stack = stack[:len(stack)-1]
			backtracks++
			continue
		}

		all := c.weights[top.vertex]
		weights := make([]float64, len(top.pending))
		for i, idx := range top.pending {
			weights[i] = all[idx]
		}
		k := pick(weights)
		idx := top.pending[k]
		top.pending = append(top.pending[:k], top.pending[k+1:]...)

		next := c.succ[top.vertex][idx]
		onWalk[state{node: next.Node, polarity: next.Polarity}] = struct{}{}
		stack = append(stack, c.frame(next, onWalk))
	}
	return nil, backtracks, fmt.Errorf("%w: no walk to %s avoids repeated rules", ErrDeadEnd, c.target)
}

// frame lists the successors of v whose pair is not on the walk.
func (c *Combined) frame(v Vertex, onWalk map[state]struct{}) walkFrame {
	f := walkFrame{vertex: v}
	for i, next := range c.succ[v] {
		if _, ok := onWalk[state{node: next.Node, polarity: next.Polarity}]; !ok {
			f.pending = append(f.pending, i)
		}
	}
	return f
}
