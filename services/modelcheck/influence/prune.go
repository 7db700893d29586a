// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influence

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// =============================================================================
// Graph Cleanup
// =============================================================================

// RemoveSelfLoops deletes every edge whose source and target are the same
// rule.
//
// Outputs:
//
//	int - Number of edges removed.
//	error - ErrGraphFrozen if the graph is frozen.
func (g *Graph) RemoveSelfLoops() (int, error) {
	if g.state == GraphStateReadOnly {
		return 0, ErrGraphFrozen
	}
	removed := 0
	for _, id := range g.order {
		removed += g.removeEdgeBundle(id, id)
	}
	return removed, nil
}

// RemoveParameterNodes deletes the named bookkeeping nodes and all their
// incident edges. Names absent from the graph are ignored.
//
// Outputs:
//
//	int - Number of nodes removed.
//	error - ErrGraphFrozen if the graph is frozen.
func (g *Graph) RemoveParameterNodes(names []string) (int, error) {
	if g.state == GraphStateReadOnly {
		return 0, ErrGraphFrozen
	}
	removed := 0
	for _, name := range names {
		if g.removeNode(name) {
			removed++
		}
	}
	return removed, nil
}

// PruneNontransitivePairs removes reciprocal edge bundles between rules that
// mirror each other.
//
// Description:
//
//	A pair (p1, p2) mirrors when the successors of p1 minus the successors
//	of p2 is exactly {p2}, and the successors of p2 minus the successors of
//	p1 is exactly {p1}. Such pairs produce explanation cycles with no causal
//	ordering, so both p1 -> p2 and p2 -> p1 are removed.
//
//	Only nodes with the same number of distinct successors can satisfy the
//	condition, so comparisons are restricted to out-degree groups. A pass
//	compares against the graph as it stood when the pass began and removes
//	its pairs as one batch. Removing one pair can leave another pair
//	mirroring, so passes repeat until one finds nothing and a second call
//	is a no-op.
//
// Outputs:
//
//	int - Number of edges removed, parallel edges counted individually.
//	error - ErrGraphFrozen if the graph is frozen.
//
// Limitations:
//
//	Quadratic in the size of the largest out-degree group, per pass.
func (g *Graph) PruneNontransitivePairs() (int, error) {
	if g.state == GraphStateReadOnly {
		return 0, ErrGraphFrozen
	}
	start := time.Now()
	_, span := startPruneSpan(context.Background(), len(g.nodes))
	defer span.End()

	pairs, removed := 0, 0
	for {
		found := g.mirroredPairs()
		if len(found) == 0 {
			break
		}
		pairs += len(found)
		for _, p := range found {
			removed += g.removeEdgeBundle(p.a, p.b)
			removed += g.removeEdgeBundle(p.b, p.a)
		}
	}

	setPruneSpanResult(span, pairs, removed)
	recordPruneMetrics(context.Background(), time.Since(start), removed)
	if removed > 0 {
		g.logger.Debug("pruned nontransitive pairs",
			slog.Int("pairs", pairs),
			slog.Int("edges_removed", removed),
		)
	}
	return removed, nil
}

// rulePair is two rules found to mirror each other.
type rulePair struct{ a, b string }

// mirroredPairs runs one comparison pass over the current edges.
func (g *Graph) mirroredPairs() []rulePair {
	succ := make(map[string]map[string]struct{}, len(g.nodes))
	groups := make(map[int][]string)
	degrees := make([]int, 0)
	for _, id := range g.order {
		s := g.successorSet(id)
		succ[id] = s
		if _, ok := groups[len(s)]; !ok {
			degrees = append(degrees, len(s))
		}
		groups[len(s)] = append(groups[len(s)], id)
	}
	slices.Sort(degrees)

	var found []rulePair
	for _, deg := range degrees {
		members := groups[deg]
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				p1, p2 := members[i], members[j]
				if onlyExtra(succ[p1], succ[p2], p2) && onlyExtra(succ[p2], succ[p1], p1) {
					found = append(found, rulePair{p1, p2})
				}
			}
		}
	}
	return found
}

// onlyExtra reports whether a \ b == {want}.
func onlyExtra(a, b map[string]struct{}, want string) bool {
	if _, ok := a[want]; !ok {
		return false
	}
	for k := range a {
		if k == want {
			continue
		}
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// removeEdgeBundle deletes every parallel edge from -> to and returns how
// many were removed.
func (g *Graph) removeEdgeBundle(from, to string) int {
	fromNode, ok := g.nodes[from]
	if !ok {
		return 0
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return 0
	}

	before := len(fromNode.Outgoing)
	fromNode.Outgoing = slices.DeleteFunc(fromNode.Outgoing, func(e *Edge) bool {
		return e.ToID == to
	})
	removed := before - len(fromNode.Outgoing)
	if removed == 0 {
		return 0
	}
	toNode.Incoming = slices.DeleteFunc(toNode.Incoming, func(e *Edge) bool {
		return e.FromID == from
	})
	g.edgeCount -= removed
	return removed
}

// removeNode deletes a node and its incident edges.
func (g *Graph) removeNode(id string) bool {
	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	for _, e := range slices.Clone(node.Outgoing) {
		g.removeEdgeBundle(id, e.ToID)
	}
	for _, e := range slices.Clone(node.Incoming) {
		g.removeEdgeBundle(e.FromID, id)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(n string) bool { return n == id })
	return true
}
