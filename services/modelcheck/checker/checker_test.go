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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/observables"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// fixture is a small MAPK-like model:
//
//	raf_mek --(+)--> mek_erk --(+)--> obs_erk <--(-)-- pp_erk
type fixture struct {
	graph    *influence.Graph
	index    *observables.Index
	resolver *observables.Resolver
}

func newFixture(t *testing.T, freeze bool) fixture {
	t.Helper()
	g := influence.NewGraph()
	for _, id := range []string{"raf_mek", "mek_erk", "obs_erk", "pp_erk"} {
		_, err := g.AddNode(id)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("raf_mek", "mek_erk", influence.Positive))
	require.NoError(t, g.AddEdge("mek_erk", "obs_erk", influence.Positive))
	require.NoError(t, g.AddEdge("pp_erk", "obs_erk", influence.Negative))
	if freeze {
		g.Freeze()
	}

	ix, err := observables.FromGraph(g, map[string][]string{
		"erk_p":  {"obs_erk"},
		"orphan": {"missing"},
	})
	require.NoError(t, err)

	r := observables.NewResolver()
	r.Add("RAF", []string{"raf_mek"}, []string{"raf_mek"})
	r.Add("PP", []string{"pp_erk"}, []string{"pp_erk"})
	r.Add("BYSTANDER", []string{"mek_erk"}, nil)

	return fixture{graph: g, index: ix, resolver: r}
}

func newChecker(t *testing.T, opts ...Option) *Checker {
	t.Helper()
	f := newFixture(t, true)
	c, err := New(f.graph, f.index, f.resolver, opts...)
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

// =============================================================================
// New
// =============================================================================

func TestNew_Errors(t *testing.T) {
	f := newFixture(t, true)

	_, err := New(nil, f.index, f.resolver)
	assert.ErrorIs(t, err, ErrNilInput)
	_, err = New(f.graph, nil, f.resolver)
	assert.ErrorIs(t, err, ErrNilInput)
	_, err = New(f.graph, f.index, nil)
	assert.ErrorIs(t, err, ErrNilInput)

	unfrozen := newFixture(t, false)
	_, err = New(unfrozen.graph, unfrozen.index, unfrozen.resolver)
	assert.ErrorIs(t, err, ErrNotFrozen)
}

func TestHandles(t *testing.T) {
	c := newChecker(t)
	for _, k := range []QueryKind{
		KindAddModification, KindRemoveModification,
		KindActivation, KindInhibition,
		KindIncreaseAmount, KindDecreaseAmount,
	} {
		assert.True(t, c.Handles(k), k)
	}
	assert.False(t, c.Handles("complex"))
}

// =============================================================================
// CheckQuery
// =============================================================================

func TestCheckQuery_ResultCodes(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		found bool
		code  result.Code
	}{
		{
			name:  "activation found",
			query: Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"},
			found: true,
			code:  result.PathsFound,
		},
		{
			name:  "wrong sign",
			query: Query{Kind: KindInhibition, Subject: "RAF", Object: "erk_p"},
			code:  result.NoPathsFound,
		},
		{
			name:  "inhibition found",
			query: Query{Kind: KindInhibition, Subject: "PP", Object: "erk_p"},
			found: true,
			code:  result.PathsFound,
		},
		{
			name:  "amount regulation",
			query: Query{Kind: KindIncreaseAmount, Subject: "RAF", Object: "erk_p"},
			found: true,
			code:  result.PathsFound,
		},
		{
			name:  "unknown subject",
			query: Query{Kind: KindActivation, Subject: "NOPE", Object: "erk_p"},
			code:  result.SubjectNodesNotFound,
		},
		{
			name:  "empty subject on regulation",
			query: Query{Kind: KindActivation, Object: "erk_p"},
			code:  result.SubjectNodesNotFound,
		},
		{
			name:  "empty subject on modification",
			query: Query{Kind: KindAddModification, Object: "erk_p"},
			found: true,
			code:  result.PathsFound,
		},
		{
			name:  "removal by any rule",
			query: Query{Kind: KindRemoveModification, Object: "erk_p"},
			found: true,
			code:  result.PathsFound,
		},
		{
			name:  "subject without input rules",
			query: Query{Kind: KindActivation, Subject: "BYSTANDER", Object: "erk_p"},
			code:  result.InputRulesNotFound,
		},
		{
			name:  "object without readouts",
			query: Query{Kind: KindActivation, Subject: "RAF", Object: "orphan"},
			code:  result.ObservablesNotFound,
		},
		{
			name:  "unhandled kind",
			query: Query{Kind: "complex", Subject: "RAF", Object: "erk_p"},
			code:  result.StatementTypeNotHandled,
		},
		{
			name:  "too short",
			query: Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPathLength: intPtr(1)},
			found: true,
			code:  result.MaxPathLengthExceeded,
		},
		{
			name:  "zero paths requested",
			query: Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPaths: intPtr(0)},
			found: true,
			code:  result.MaxPathsZero,
		},
	}

	c := newChecker(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, err := c.CheckQuery(context.Background(), tt.query)
			require.NoError(t, err)
			require.NotNil(t, pr)
			assert.Equal(t, tt.found, pr.PathFound)
			assert.Equal(t, tt.code, pr.ResultCode)
		})
	}
}

func TestCheckQuery_PathShape(t *testing.T) {
	c := newChecker(t)

	pr, err := c.CheckQuery(context.Background(), Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)
	require.Len(t, pr.Paths, 1)

	p := pr.Paths[0]
	assert.Equal(t, []string{"raf_mek", "mek_erk", "obs_erk"}, p.Nodes())
	assert.Equal(t, influence.Positive, p.Sign())
	assert.Equal(t, DefaultMaxPaths, pr.MaxPaths)
	assert.Equal(t, DefaultMaxPathLength, pr.MaxPathLength)
}

func TestCheckQuery_QueryBoundsOverrideDefaults(t *testing.T) {
	c := newChecker(t, WithBounds(1, 1))

	pr, err := c.CheckQuery(context.Background(), Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)
	assert.Equal(t, result.MaxPathLengthExceeded, pr.ResultCode)

	pr, err = c.CheckQuery(context.Background(), Query{
		Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPathLength: intPtr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, result.PathsFound, pr.ResultCode)
	assert.Equal(t, 3, pr.MaxPathLength)
}

func TestCheckQuery_NegativeBoundIsError(t *testing.T) {
	c := newChecker(t)
	_, err := c.CheckQuery(context.Background(), Query{
		Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPaths: intPtr(-1),
	})
	assert.Error(t, err)
}

func TestCheckQuery_Sampling(t *testing.T) {
	c := newChecker(t, WithSampling(true, 7))

	pr, err := c.CheckQuery(context.Background(), Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)
	assert.True(t, pr.PathFound)
	require.NotEmpty(t, pr.Paths)
	assert.Equal(t, []string{"raf_mek", "mek_erk", "obs_erk"}, pr.Paths[0].Nodes())

	pr, err = c.CheckQuery(context.Background(), Query{Kind: KindInhibition, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)
	assert.False(t, pr.PathFound)
}

func TestCheckQuery_EnginesAgreeOnShortBounds(t *testing.T) {
	exhaustive := newChecker(t)
	sampling := newChecker(t, WithSampling(true, 7))

	for _, length := range []int{0, 1} {
		q := Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPathLength: intPtr(length)}

		want, err := exhaustive.CheckQuery(context.Background(), q)
		require.NoError(t, err)
		got, err := sampling.CheckQuery(context.Background(), q)
		require.NoError(t, err, "max_path_length=%d", length)

		assert.Equal(t, result.MaxPathLengthExceeded, want.ResultCode)
		assert.Equal(t, want.ResultCode, got.ResultCode, "max_path_length=%d", length)
		assert.Equal(t, want.PathFound, got.PathFound)
		assert.Equal(t, want.PathMetrics, got.PathMetrics)
	}
}

// =============================================================================
// CheckModel
// =============================================================================

func TestCheckModel_PreservesOrder(t *testing.T) {
	c := newChecker(t, WithWorkers(2))
	queries := []Query{
		{ID: "q1", Kind: KindActivation, Subject: "RAF", Object: "erk_p"},
		{ID: "q2", Kind: KindInhibition, Subject: "RAF", Object: "erk_p"},
		{ID: "q3", Kind: KindInhibition, Subject: "PP", Object: "erk_p"},
		{ID: "q4", Kind: "complex", Object: "erk_p"},
	}

	report, err := c.CheckModel(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, len(queries))
	assert.NotEmpty(t, report.RunID)

	for i, o := range report.Outcomes {
		assert.Equal(t, queries[i].ID, o.Query.ID)
	}
	assert.Equal(t, 2, report.Explained())

	counts := report.CountByCode()
	assert.Equal(t, 2, counts[result.PathsFound])
	assert.Equal(t, 1, counts[result.NoPathsFound])
	assert.Equal(t, 1, counts[result.StatementTypeNotHandled])
}

func TestCheckModel_ExceededIsNotExplained(t *testing.T) {
	c := newChecker(t)
	report, err := c.CheckModel(context.Background(), []Query{
		{ID: "q1", Kind: KindActivation, Subject: "RAF", Object: "erk_p"},
		{ID: "q2", Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPathLength: intPtr(1)},
	})
	require.NoError(t, err)

	assert.True(t, report.Outcomes[1].Result.PathFound)
	assert.Equal(t, 1, report.Explained())
	assert.Equal(t, 1, report.CountByCode()[result.MaxPathLengthExceeded])
}

func TestCheckQuery_ExplainedReadoutBeatsExceeded(t *testing.T) {
	// far is two steps from raf_mek, near is one.
	g := influence.NewGraph()
	for _, id := range []string{"raf_mek", "mek_erk", "far", "near"} {
		_, err := g.AddNode(id)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("raf_mek", "mek_erk", influence.Positive))
	require.NoError(t, g.AddEdge("mek_erk", "far", influence.Positive))
	require.NoError(t, g.AddEdge("raf_mek", "near", influence.Positive))
	g.Freeze()

	ix, err := observables.FromGraph(g, map[string][]string{"erk_p": {"far", "near"}})
	require.NoError(t, err)
	r := observables.NewResolver()
	r.Add("RAF", []string{"raf_mek"}, []string{"raf_mek"})

	c, err := New(g, ix, r, WithBounds(1, 1))
	require.NoError(t, err)

	pr, err := c.CheckQuery(context.Background(), Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)
	assert.Equal(t, result.PathsFound, pr.ResultCode)
	require.Len(t, pr.Paths, 1)
	assert.Equal(t, []string{"raf_mek", "near"}, pr.Paths[0].Nodes())
}

func TestCheckModel_Empty(t *testing.T) {
	c := newChecker(t)
	report, err := c.CheckModel(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, report.Explained())
}

func TestCheckModel_ErrorStopsBatch(t *testing.T) {
	c := newChecker(t)
	_, err := c.CheckModel(context.Background(), []Query{
		{Kind: KindActivation, Subject: "RAF", Object: "erk_p"},
		{Kind: KindActivation, Subject: "RAF", Object: "erk_p", MaxPathLength: intPtr(-1)},
	})
	assert.Error(t, err)
}

// =============================================================================
// ScorePaths
// =============================================================================

func TestScorePaths(t *testing.T) {
	c := newChecker(t)
	pr, err := c.CheckQuery(context.Background(), Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"})
	require.NoError(t, err)

	ranked, err := c.ScorePaths(pr.Paths, map[string]float64{"erk_p": 1.0})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, pr.Paths[0], ranked[0].Path)
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "activation(RAF, erk_p)", Query{Kind: KindActivation, Subject: "RAF", Object: "erk_p"}.String())
	assert.Equal(t, "add_modification(*, erk_p)", Query{Kind: KindAddModification, Object: "erk_p"}.String())
}
