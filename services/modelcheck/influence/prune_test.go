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
	"slices"
	"testing"
)

func TestGraph_RemoveSelfLoops(t *testing.T) {
	g := buildGraph(t,
		[]string{"A", "B"},
		[]edgeSpec{
			{"A", "A", Positive},
			{"A", "A", Negative},
			{"A", "B", Positive},
			{"B", "B", Positive},
		},
	)

	removed, err := g.RemoveSelfLoops()
	if err != nil {
		t.Fatalf("RemoveSelfLoops: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, expected 3", removed)
	}
	if g.EdgeCount() != 1 || !g.HasEdge("A", "B") {
		t.Errorf("after removal EdgeCount = %d, HasEdge(A,B) = %v", g.EdgeCount(), g.HasEdge("A", "B"))
	}
	if got := slices.Collect(g.Predecessors("A")); len(got) != 0 {
		t.Errorf("Predecessors(A) = %v, expected empty", got)
	}
}

func TestGraph_RemoveParameterNodes(t *testing.T) {
	g := buildGraph(t,
		[]string{"kf_bind", "R1", "R2"},
		[]edgeSpec{
			{"kf_bind", "R1", Positive},
			{"R1", "R2", Positive},
			{"R2", "kf_bind", Negative},
		},
	)

	removed, err := g.RemoveParameterNodes([]string{"kf_bind", "not_there"})
	if err != nil {
		t.Fatalf("RemoveParameterNodes: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, expected 1", removed)
	}
	if g.HasNode("kf_bind") {
		t.Error("parameter node still present")
	}
	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount = %d, expected 1", g.EdgeCount())
	}
	if got := slices.Collect(g.Nodes()); !slices.Equal(got, []string{"R1", "R2"}) {
		t.Errorf("Nodes() = %v, expected [R1 R2]", got)
	}
	if got := slices.Collect(g.Predecessors("R1")); len(got) != 0 {
		t.Errorf("Predecessors(R1) = %v, expected empty", got)
	}
}

func TestGraph_PruneNontransitivePairs(t *testing.T) {
	t.Run("mirrored pair", func(t *testing.T) {
		g := buildGraph(t,
			[]string{"P1", "P2", "X"},
			[]edgeSpec{
				{"P1", "P2", Positive},
				{"P1", "P2", Positive},
				{"P2", "P1", Positive},
				{"P1", "X", Positive},
				{"P2", "X", Negative},
			},
		)

		removed, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("PruneNontransitivePairs: %v", err)
		}
		if removed != 3 {
			t.Errorf("removed = %d, expected 3", removed)
		}
		if g.HasEdge("P1", "P2") || g.HasEdge("P2", "P1") {
			t.Error("reciprocal edges still present")
		}
		if !g.HasEdge("P1", "X") || !g.HasEdge("P2", "X") {
			t.Error("shared successor edges were removed")
		}
	})

	t.Run("chain is kept", func(t *testing.T) {
		g := buildGraph(t,
			[]string{"A", "B", "C"},
			[]edgeSpec{
				{"A", "B", Positive},
				{"B", "C", Positive},
			},
		)
		removed, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("PruneNontransitivePairs: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, expected 0", removed)
		}
	})

	t.Run("different successors are kept", func(t *testing.T) {
		g := buildGraph(t,
			[]string{"P1", "P2", "X", "Y"},
			[]edgeSpec{
				{"P1", "P2", Positive},
				{"P2", "P1", Positive},
				{"P1", "X", Positive},
				{"P2", "Y", Positive},
			},
		)
		removed, _ := g.PruneNontransitivePairs()
		if removed != 0 {
			t.Errorf("removed = %d, expected 0", removed)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		g := buildGraph(t,
			[]string{"P1", "P2", "Q1", "Q2", "X", "Y"},
			[]edgeSpec{
				{"P1", "P2", Positive},
				{"P2", "P1", Positive},
				{"P1", "X", Positive},
				{"P2", "X", Positive},
				{"Q1", "Q2", Negative},
				{"Q2", "Q1", Negative},
				{"X", "Y", Positive},
				{"Y", "X", Positive},
				{"X", "Q1", Positive},
			},
		)

		first, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("first prune: %v", err)
		}
		if first == 0 {
			t.Fatal("first prune removed nothing")
		}
		second, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("second prune: %v", err)
		}
		if second != 0 {
			t.Errorf("second prune removed %d edges, expected 0", second)
		}
	})

	t.Run("removal exposing a new pair", func(t *testing.T) {
		// Once P1 <-> P2 goes, P1 and P3 mirror each other.
		g := buildGraph(t,
			[]string{"P1", "P2", "P3"},
			[]edgeSpec{
				{"P1", "P2", Positive},
				{"P2", "P1", Positive},
				{"P1", "P3", Positive},
				{"P2", "P3", Positive},
				{"P3", "P1", Positive},
			},
		)

		first, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("first prune: %v", err)
		}
		if first != 4 {
			t.Errorf("first prune removed %d edges, expected 4", first)
		}
		second, err := g.PruneNontransitivePairs()
		if err != nil {
			t.Fatalf("second prune: %v", err)
		}
		if second != 0 {
			t.Errorf("second prune removed %d edges, expected 0", second)
		}
		if !g.HasEdge("P2", "P3") || g.EdgeCount() != 1 {
			t.Errorf("expected only P2 -> P3 to remain, have %d edges", g.EdgeCount())
		}
	})
}
