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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

const (
	pos = influence.Positive
	neg = influence.Negative
)

type edge struct {
	from, to string
	sign     influence.Sign
}

func newGraph(t *testing.T, edges ...edge) *influence.Graph {
	t.Helper()
	g := influence.NewGraph()
	add := func(id string) {
		if !g.HasNode(id) {
			_, err := g.AddNode(id)
			require.NoError(t, err)
		}
	}
	for _, e := range edges {
		add(e.from)
		add(e.to)
		require.NoError(t, g.AddEdge(e.from, e.to, e.sign))
	}
	g.Freeze()
	return g
}

func newSampler(t *testing.T, g *influence.Graph, opts ...Option) *Sampler {
	t.Helper()
	s, err := New(g, append([]Option{WithSeed(42)}, opts...)...)
	require.NoError(t, err)
	return s
}

func step(node string, pol influence.Sign) influence.Step {
	return influence.Step{Node: node, Polarity: pol}
}

func repeatsState(p influence.Path) bool {
	seen := make(map[influence.Step]struct{}, len(p))
	for _, st := range p {
		if _, ok := seen[st]; ok {
			return true
		}
		seen[st] = struct{}{}
	}
	return false
}

func TestSamplePaths_Chain(t *testing.T) {
	s := newSampler(t, newGraph(t, edge{"A", "B", pos}, edge{"B", "C", pos}))

	pr, err := s.SamplePaths(context.Background(), []string{"A"}, "C", pos, 3, 5)
	require.NoError(t, err)

	assert.True(t, pr.PathFound)
	assert.Equal(t, result.PathsFound, pr.ResultCode)
	assert.Nil(t, pr.PathMetrics)
	require.Len(t, pr.Paths, 3)
	want := influence.Path{step("A", pos), step("B", pos), step("C", pos)}
	for _, p := range pr.Paths {
		assert.Equal(t, want, p)
	}
}

func TestSamplePaths_SignSelectsBranch(t *testing.T) {
	s := newSampler(t, newGraph(t,
		edge{"A", "B", pos}, edge{"B", "C", neg},
		edge{"A", "D", neg}, edge{"D", "C", neg},
	))

	pr, err := s.SamplePaths(context.Background(), []string{"A"}, "C", pos, 5, 5)
	require.NoError(t, err)
	require.Equal(t, result.PathsFound, pr.ResultCode)
	for _, p := range pr.Paths {
		assert.Equal(t, influence.Path{step("A", pos), step("D", neg), step("C", pos)}, p)
	}

	pr, err = s.SamplePaths(context.Background(), []string{"A"}, "C", neg, 5, 5)
	require.NoError(t, err)
	for _, p := range pr.Paths {
		assert.Equal(t, []string{"A", "B", "C"}, p.Nodes())
		assert.Equal(t, neg, p.Sign())
	}
}

func TestSamplePaths_NoPaths(t *testing.T) {
	s := newSampler(t, newGraph(t, edge{"A", "B", pos}, edge{"B", "C", pos}))
	ctx := context.Background()

	t.Run("wrong polarity", func(t *testing.T) {
		pr, err := s.SamplePaths(ctx, []string{"A"}, "C", neg, 1, 5)
		require.NoError(t, err)
		assert.False(t, pr.PathFound)
		assert.Equal(t, result.NoPathsFound, pr.ResultCode)
		assert.Nil(t, pr.PathMetrics)
		assert.Empty(t, pr.Paths)
	})

	t.Run("too short a bound", func(t *testing.T) {
		pr, err := s.SamplePaths(ctx, []string{"A"}, "C", pos, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, result.NoPathsFound, pr.ResultCode)
	})

	t.Run("unknown source", func(t *testing.T) {
		pr, err := s.SamplePaths(ctx, []string{"Z"}, "C", pos, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, result.NoPathsFound, pr.ResultCode)
	})
}

func TestSamplePaths_ZeroLengthBound(t *testing.T) {
	s := newSampler(t, newGraph(t, edge{"A", "B", pos}))

	pr, err := s.SamplePaths(context.Background(), []string{"A"}, "B", pos, 1, 0)
	require.NoError(t, err)
	assert.False(t, pr.PathFound)
	assert.Equal(t, result.NoPathsFound, pr.ResultCode)
	assert.Equal(t, 0, pr.MaxPathLength)
}

func TestSamplePaths_CyclicChain(t *testing.T) {
	// X0 -> X1 -> ... -> X9 -> T, and every Xi loops back to X0.
	var edges []edge
	for i := range 9 {
		edges = append(edges, edge{fmt.Sprintf("X%d", i), fmt.Sprintf("X%d", i+1), pos})
	}
	edges = append(edges, edge{"X9", "T", pos})
	for i := 1; i <= 9; i++ {
		edges = append(edges, edge{fmt.Sprintf("X%d", i), "X0", pos})
	}
	s := newSampler(t, newGraph(t, edges...))

	c, err := s.Build(context.Background(), []string{"X0"}, "T", pos, 30)
	require.NoError(t, err)
	require.False(t, c.Empty())

	pr, err := s.SamplePaths(context.Background(), []string{"X0"}, "T", pos, 5, 30)
	require.NoError(t, err)
	assert.True(t, pr.PathFound)
	assert.Equal(t, result.PathsFound, pr.ResultCode)
	require.Len(t, pr.Paths, 5)

	want := []string{"X0", "X1", "X2", "X3", "X4", "X5", "X6", "X7", "X8", "X9", "T"}
	for _, p := range pr.Paths {
		assert.Equal(t, want, p.Nodes())
		assert.False(t, repeatsState(p), "path %s repeats a state", p)
	}
}

func TestSamplePaths_BacktracksAtDeadEnd(t *testing.T) {
	// S -> A -> S -> T is in the structure, but from A the only way on
	// revisits S, so every walk settles on S -> T.
	g := newGraph(t,
		edge{"S", "A", pos}, edge{"A", "S", pos},
		edge{"S", "T", pos},
	)
	s := newSampler(t, g)

	pr, err := s.SamplePaths(context.Background(), []string{"S"}, "T", pos, 20, 3)
	require.NoError(t, err)
	require.Equal(t, result.PathsFound, pr.ResultCode)
	require.Len(t, pr.Paths, 20)
	for _, p := range pr.Paths {
		assert.Equal(t, influence.Path{step("S", pos), step("T", pos)}, p)
	}
}

func TestSamplePaths_TargetIsNotItsOwnSource(t *testing.T) {
	g := newGraph(t, edge{"T", "A", pos}, edge{"A", "T", pos})
	s := newSampler(t, g)

	c, err := s.Build(context.Background(), []string{"T"}, "T", pos, 5)
	require.NoError(t, err)
	assert.True(t, c.Empty())

	pr, err := s.SamplePaths(context.Background(), []string{"T"}, "T", pos, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, result.NoPathsFound, pr.ResultCode)
}

func TestSamplePaths_MaxPathsZero(t *testing.T) {
	s := newSampler(t, newGraph(t, edge{"A", "B", pos}))

	pr, err := s.SamplePaths(context.Background(), []string{"A"}, "B", pos, 0, 5)
	require.NoError(t, err)
	assert.True(t, pr.PathFound)
	assert.Equal(t, result.MaxPathsZero, pr.ResultCode)
	assert.Empty(t, pr.Paths)
}

func TestSamplePaths_Errors(t *testing.T) {
	s := newSampler(t, newGraph(t, edge{"A", "B", pos}))
	ctx := context.Background()

	_, err := s.SamplePaths(ctx, nil, "B", pos, -1, 5)
	assert.ErrorIs(t, err, ErrInvalidBound)

	_, err = s.SamplePaths(ctx, nil, "B", pos, 1, -1)
	assert.ErrorIs(t, err, ErrInvalidBound)

	_, err = s.SamplePaths(ctx, nil, "B", influence.Unsigned, 1, 5)
	assert.ErrorIs(t, err, ErrInvalidPolarity)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNilGraph)

	_, err = New(influence.NewGraph())
	assert.ErrorIs(t, err, ErrEmptyGraph)

	unsigned := newGraph(t, edge{"A", "B", influence.Unsigned})
	_, err = newSampler(t, unsigned).SamplePaths(ctx, nil, "B", pos, 1, 5)
	var mse *influence.MissingSignError
	assert.ErrorAs(t, err, &mse)
}

func TestSamplePaths_SeededDeterminism(t *testing.T) {
	g := newGraph(t,
		edge{"S", "X1", pos}, edge{"X1", "T", pos},
		edge{"S", "X2", pos}, edge{"X2", "T", pos},
		edge{"S", "X3", neg}, edge{"X3", "T", neg},
	)

	draw := func() []influence.Path {
		s := newSampler(t, g)
		pr, err := s.SamplePaths(context.Background(), []string{"S"}, "T", pos, 20, 4)
		require.NoError(t, err)
		return pr.Paths
	}
	assert.Equal(t, draw(), draw())
}

func TestSamplePaths_AbundanceWeighting(t *testing.T) {
	g := newGraph(t,
		edge{"S", "X1", pos}, edge{"X1", "T", pos},
		edge{"S", "X2", pos}, edge{"X2", "T", pos},
	)
	s := newSampler(t, g,
		WithRuleObjects(map[string]string{"X1": "ABUNDANT", "X2": "RARE"}),
		WithInitialAmounts(map[string]float64{"ABUNDANT": 99, "RARE": 1}),
	)

	pr, err := s.SamplePaths(context.Background(), []string{"S"}, "T", pos, 200, 3)
	require.NoError(t, err)
	require.Len(t, pr.Paths, 200)

	viaAbundant := 0
	for _, p := range pr.Paths {
		if p[1].Node == "X1" {
			viaAbundant++
		}
	}
	assert.Greater(t, viaAbundant, 170)
}

func TestSamplePaths_NoRepeatsNoTrivial(t *testing.T) {
	g := newGraph(t,
		edge{"A", "T", pos},
		edge{"T", "A", pos},
		edge{"A", "B", neg},
		edge{"B", "T", neg},
	)
	s := newSampler(t, g)

	pr, err := s.SamplePaths(context.Background(), nil, "T", pos, 30, 4)
	require.NoError(t, err)
	require.Equal(t, result.PathsFound, pr.ResultCode)

	for _, p := range pr.Paths {
		assert.GreaterOrEqual(t, p.Len(), 1)
		assert.Equal(t, "T", p[len(p)-1].Node)
		assert.Equal(t, pos, p.Sign())
		assert.False(t, repeatsState(p), "path %s repeats a state", p)

		product := pos
		for i := 1; i < len(p); i++ {
			sign, err := g.EdgeSign(p[i-1].Node, p[i].Node)
			require.NoError(t, err)
			product *= sign
			assert.Equal(t, product, p[i].Polarity)
		}
	}
}

func TestBuild_Lengths(t *testing.T) {
	g := newGraph(t,
		edge{"A", "B", pos}, edge{"B", "C", pos},
		edge{"A", "C", pos},
	)
	s := newSampler(t, g)

	c, err := s.Build(context.Background(), []string{"A"}, "C", pos, 5)
	require.NoError(t, err)
	assert.False(t, c.Empty())
	assert.Equal(t, []int{1, 2}, c.Lengths())
	assert.Positive(t, c.EdgeCount())

	c, err = s.Build(context.Background(), []string{"A"}, "C", pos, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, c.Lengths())

	c, err = s.Build(context.Background(), []string{"A"}, "C", pos, 0)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestAssignWeights(t *testing.T) {
	from := Vertex{Depth: 1, Node: "X", Polarity: pos}
	succ := []Vertex{
		{Depth: 2, Node: "R1", Polarity: pos},
		{Depth: 2, Node: "R2", Polarity: pos},
		{Depth: 2, Node: "R3", Polarity: neg},
		{Depth: 2, Node: "R4", Polarity: pos},
	}
	c := &Combined{
		succ:    map[Vertex][]Vertex{from: succ},
		weights: make(map[Vertex][]float64),
	}

	assignWeights(c,
		map[string]string{"R1": "MEK", "R2": "MEK", "R3": "ERK"},
		map[string]float64{"MEK": 10, "ERK": 5},
	)

	w := c.weights[from]
	require.Len(t, w, 4)
	assert.InDelta(t, 10.0/16/2, w[0], 1e-12)
	assert.InDelta(t, 10.0/16/2, w[1], 1e-12)
	assert.InDelta(t, 5.0/16, w[2], 1e-12)
	assert.InDelta(t, 1.0/16, w[3], 1e-12)
}

func TestPickWeighted(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		r       float64
		want    int
	}{
		{"skips zero weight", []float64{0, 1, 3}, 0, 1},
		{"inside first bucket", []float64{0, 1, 3}, 0.24, 1},
		{"boundary moves on", []float64{0, 1, 3}, 0.25, 2},
		{"top of range", []float64{0, 1, 3}, 0.999, 2},
		{"all zero is uniform", []float64{0, 0}, 0.6, 1},
		{"single", []float64{2}, 0.5, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pickWeighted(tc.weights, tc.r))
		})
	}
}
