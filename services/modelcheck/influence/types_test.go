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
	"errors"
	"slices"
	"testing"
)

// edgeSpec is a compact edge description for test graphs.
type edgeSpec struct {
	from, to string
	sign     Sign
}

// buildGraph creates a graph with the listed nodes (in order) and edges.
func buildGraph(t *testing.T, nodes []string, edges []edgeSpec, opts ...GraphOption) *Graph {
	t.Helper()
	g := NewGraph(opts...)
	for _, n := range nodes {
		if _, err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%q): %v", n, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to, e.sign); err != nil {
			t.Fatalf("AddEdge(%q, %q): %v", e.from, e.to, err)
		}
	}
	return g
}

func TestGraphState_String(t *testing.T) {
	tests := []struct {
		state    GraphState
		expected string
	}{
		{GraphStateBuilding, "building"},
		{GraphStateReadOnly, "readonly"},
		{GraphState(99), "unknown"},
	}

	for _, tc := range tests {
		if got := tc.state.String(); got != tc.expected {
			t.Errorf("GraphState(%d).String() = %q, expected %q", tc.state, got, tc.expected)
		}
	}
}

func TestSign(t *testing.T) {
	tests := []struct {
		sign  Sign
		str   string
		valid bool
	}{
		{Positive, "+", true},
		{Negative, "-", true},
		{Unsigned, "?", false},
		{Sign(3), "?", false},
	}

	for _, tc := range tests {
		if got := tc.sign.String(); got != tc.str {
			t.Errorf("Sign(%d).String() = %q, expected %q", tc.sign, got, tc.str)
		}
		if got := tc.sign.Valid(); got != tc.valid {
			t.Errorf("Sign(%d).Valid() = %v, expected %v", tc.sign, got, tc.valid)
		}
	}

	if Positive*Negative != Negative {
		t.Errorf("Positive*Negative = %d, expected Negative", Positive*Negative)
	}
	if Negative*Negative != Positive {
		t.Errorf("Negative*Negative = %d, expected Positive", Negative*Negative)
	}
	if Negative.Flip() != Positive {
		t.Errorf("Negative.Flip() = %d, expected Positive", Negative.Flip())
	}
	if SignOf(-7) != Negative || SignOf(2) != Positive || SignOf(0) != Unsigned {
		t.Error("SignOf did not map integers to signs")
	}
}

func TestNewGraph(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		g := NewGraph()
		if g.State() != GraphStateBuilding {
			t.Errorf("State = %v, expected Building", g.State())
		}
		if g.NodeCount() != 0 || g.EdgeCount() != 0 {
			t.Errorf("new graph has %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
		}
		if g.options.MaxNodes != DefaultMaxNodes {
			t.Errorf("MaxNodes = %d, expected %d", g.options.MaxNodes, DefaultMaxNodes)
		}
		if g.options.ConflictPolicy != ConflictPreferPositive {
			t.Errorf("ConflictPolicy = %v, expected prefer_positive", g.options.ConflictPolicy)
		}
	})

	t.Run("node limit", func(t *testing.T) {
		g := NewGraph(WithMaxNodes(1))
		if _, err := g.AddNode("A"); err != nil {
			t.Fatalf("AddNode(A): %v", err)
		}
		if _, err := g.AddNode("B"); !errors.Is(err, ErrMaxNodesExceeded) {
			t.Errorf("AddNode(B) err = %v, expected ErrMaxNodesExceeded", err)
		}
	})

	t.Run("edge limit", func(t *testing.T) {
		g := buildGraph(t, []string{"A", "B"}, nil, WithMaxEdges(1))
		if err := g.AddEdge("A", "B", Positive); err != nil {
			t.Fatalf("first AddEdge: %v", err)
		}
		if err := g.AddEdge("B", "A", Positive); !errors.Is(err, ErrMaxEdgesExceeded) {
			t.Errorf("second AddEdge err = %v, expected ErrMaxEdgesExceeded", err)
		}
	})
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph()

	if _, err := g.AddNode(""); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("AddNode(\"\") err = %v, expected ErrInvalidNode", err)
	}
	if _, err := g.AddNode("R1"); err != nil {
		t.Fatalf("AddNode(R1): %v", err)
	}
	if _, err := g.AddNode("R1"); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate AddNode err = %v, expected ErrDuplicateNode", err)
	}
	if !g.HasNode("R1") || g.HasNode("R2") {
		t.Error("HasNode does not reflect added nodes")
	}
}

func TestGraph_AddEdge(t *testing.T) {
	g := buildGraph(t, []string{"A", "B"}, nil)

	tests := []struct {
		name    string
		from    string
		to      string
		sign    Sign
		wantErr error
	}{
		{"positive", "A", "B", Positive, nil},
		{"negative parallel", "A", "B", Negative, nil},
		{"unsigned", "B", "A", Unsigned, nil},
		{"bad sign", "A", "B", Sign(2), ErrInvalidSign},
		{"missing source", "X", "B", Positive, ErrNodeNotFound},
		{"missing target", "A", "X", Positive, ErrNodeNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := g.AddEdge(tc.from, tc.to, tc.sign)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("AddEdge: unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("AddEdge err = %v, expected %v", err, tc.wantErr)
			}
		})
	}

	if g.EdgeCount() != 3 {
		t.Errorf("EdgeCount = %d, expected 3", g.EdgeCount())
	}
	if !g.HasEdge("A", "B") || g.HasEdge("B", "B") {
		t.Error("HasEdge does not reflect added edges")
	}
}

func TestGraph_Freeze(t *testing.T) {
	g := buildGraph(t, []string{"A", "B"}, []edgeSpec{{"A", "B", Positive}})
	g.Freeze()

	if !g.IsFrozen() {
		t.Fatal("IsFrozen = false after Freeze")
	}
	if g.BuiltAtMilli == 0 {
		t.Error("BuiltAtMilli not set by Freeze")
	}
	if _, err := g.AddNode("C"); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddNode after Freeze err = %v, expected ErrGraphFrozen", err)
	}
	if err := g.AddEdge("B", "A", Positive); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddEdge after Freeze err = %v, expected ErrGraphFrozen", err)
	}
	if _, err := g.RemoveSelfLoops(); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("RemoveSelfLoops after Freeze err = %v, expected ErrGraphFrozen", err)
	}
	if _, err := g.RemoveParameterNodes([]string{"A"}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("RemoveParameterNodes after Freeze err = %v, expected ErrGraphFrozen", err)
	}
	if _, err := g.PruneNontransitivePairs(); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("PruneNontransitivePairs after Freeze err = %v, expected ErrGraphFrozen", err)
	}
}

func TestGraph_Neighbours(t *testing.T) {
	g := buildGraph(t,
		[]string{"A", "B", "C", "D"},
		[]edgeSpec{
			{"B", "D", Positive},
			{"A", "D", Negative},
			{"B", "D", Positive},
			{"C", "D", Positive},
			{"D", "A", Positive},
		},
	)

	preds := slices.Collect(g.Predecessors("D"))
	if want := []string{"B", "A", "C"}; !slices.Equal(preds, want) {
		t.Errorf("Predecessors(D) = %v, expected %v", preds, want)
	}
	succ := slices.Collect(g.Successors("B"))
	if want := []string{"D"}; !slices.Equal(succ, want) {
		t.Errorf("Successors(B) = %v, expected %v", succ, want)
	}
	if got := slices.Collect(g.Predecessors("missing")); len(got) != 0 {
		t.Errorf("Predecessors(missing) = %v, expected empty", got)
	}
	nodes := slices.Collect(g.Nodes())
	if want := []string{"A", "B", "C", "D"}; !slices.Equal(nodes, want) {
		t.Errorf("Nodes() = %v, expected insertion order %v", nodes, want)
	}

	stats := g.Stats()
	if stats.EdgeCount != 5 || stats.NegativeEdges != 1 || stats.UnsignedEdges != 0 {
		t.Errorf("Stats = %+v", stats)
	}
}
