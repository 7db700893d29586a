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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

const mapkModel = `
name: mapk
rules: [raf_mek, mek_erk, obs_erk, pp_erk, loop]
parameters: [k_cat]
influences:
  - {from: raf_mek, to: mek_erk, sign: 1}
  - {from: mek_erk, to: obs_erk, sign: 1}
  - {from: pp_erk, to: obs_erk, sign: -1}
  - {from: loop, to: loop, sign: 1}
  - {from: k_cat, to: raf_mek, sign: 1}
observables:
  erk_p: [obs_erk]
agents:
  RAF: {rules: [raf_mek], subject_of: [raf_mek]}
  PP: {rules: [pp_erk], subject_of: [pp_erk]}
rule_objects:
  raf_mek: MEK
  mek_erk: ERK
initial_amounts:
  MEK: 100
  ERK: 50
queries:
  - {id: q1, kind: activation, subject: RAF, object: erk_p}
  - {id: q2, kind: inhibition, subject: PP, object: erk_p, max_path_length: 3}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Parse and Load
// =============================================================================

func TestParse_Valid(t *testing.T) {
	f, err := Parse(context.Background(), []byte(mapkModel))
	require.NoError(t, err)

	assert.Equal(t, "mapk", f.Name)
	assert.Len(t, f.Rules, 5)
	assert.Len(t, f.Influences, 5)
	require.NotNil(t, f.Influences[2].Sign)
	assert.Equal(t, -1, *f.Influences[2].Sign)
	assert.Equal(t, []string{"raf_mek"}, f.Agents["RAF"].SubjectOf)

	qs := f.CheckerQueries()
	require.Len(t, qs, 2)
	assert.Equal(t, checker.KindInhibition, qs[1].Kind)
	require.NotNil(t, qs[1].MaxPathLength)
	assert.Equal(t, 3, *qs[1].MaxPathLength)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no name", "rules: [a]"},
		{"no rules", "name: x"},
		{"unknown key", "name: x\nrules: [a]\nbogus: 1"},
		{"bad sign", "name: x\nrules: [a, b]\ninfluences: [{from: a, to: b, sign: 2}]"},
		{"zero sign", "name: x\nrules: [a, b]\ninfluences: [{from: a, to: b, sign: 0}]"},
		{"unknown source", "name: x\nrules: [a]\ninfluences: [{from: z, to: a, sign: 1}]"},
		{"duplicate rule", "name: x\nrules: [a, a]"},
		{"parameter clash", "name: x\nrules: [a]\nparameters: [a]"},
		{"unknown readout", "name: x\nrules: [a]\nobservables: {c: [z]}"},
		{"subject outside rules", "name: x\nrules: [a, b]\nagents: {A: {rules: [a], subject_of: [b]}}"},
		{"agent without rules", "name: x\nrules: [a]\nagents: {A: {rules: []}}"},
		{"negative amount", "name: x\nrules: [a]\ninitial_amounts: {A: -1}"},
		{"query without object", "name: x\nrules: [a]\nqueries: [{kind: activation}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestParse_MissingSignAllowed(t *testing.T) {
	f, err := Parse(context.Background(), []byte("name: x\nrules: [a, b]\ninfluences: [{from: a, to: b}]"))
	require.NoError(t, err)
	assert.Nil(t, f.Influences[0].Sign)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", mapkModel)

	f, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "mapk", f.Name)

	_, err = Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_TooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.yaml")
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(MaxModelFileSize+1))
	require.NoError(t, fh.Close())

	_, err = Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestLoadQueries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "queries.yaml", `
queries:
  - {kind: add_modification, object: erk_p}
  - {kind: decrease_amount, subject: PP, object: erk_p, max_paths: 2}
`)
	qs, err := LoadQueries(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, checker.KindAddModification, qs[0].Kind)
	assert.Empty(t, qs[0].Subject)
	require.NotNil(t, qs[1].MaxPaths)
	assert.Equal(t, 2, *qs[1].MaxPaths)

	bad := writeFile(t, dir, "bad.yaml", "queries: [{kind: activation}]")
	_, err = LoadQueries(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

// =============================================================================
// Assemble
// =============================================================================

func TestAssemble(t *testing.T) {
	f, err := Parse(context.Background(), []byte(mapkModel))
	require.NoError(t, err)

	a, err := f.Assemble(context.Background(), AssembleOptions{})
	require.NoError(t, err)

	assert.True(t, a.Graph.IsFrozen())
	assert.False(t, a.Graph.HasNode("k_cat"))
	assert.False(t, a.Graph.HasEdge("loop", "loop"))
	assert.Equal(t, 1, a.Pruned.SelfLoops)
	assert.Equal(t, 1, a.Pruned.ParameterNodes)
	assert.Equal(t, 0, a.Pruned.NontransitiveEdges)
	assert.Equal(t, 2, a.Pruned.Total())

	assert.Equal(t, []string{"obs_erk"}, a.Index.Observables("erk_p"))
	assert.Equal(t, []string{"raf_mek"}, a.Resolver.InputRules("RAF"))
	assert.Equal(t, "MEK", a.RuleObjects["raf_mek"])
	assert.Equal(t, 100.0, a.InitialAmounts["MEK"])
	assert.Len(t, a.Queries, 2)
}

func TestAssemble_PrunesMirroredPairs(t *testing.T) {
	f, err := Parse(context.Background(), []byte(`
name: mirror
rules: [a, b]
influences:
  - {from: a, to: b, sign: 1}
  - {from: b, to: a, sign: 1}
`))
	require.NoError(t, err)

	kept, err := f.Assemble(context.Background(), AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, kept.Graph.EdgeCount())

	pruned, err := f.Assemble(context.Background(), AssembleOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 0, pruned.Graph.EdgeCount())
	assert.Equal(t, 2, pruned.Pruned.NontransitiveEdges)
}

func TestAssemble_MissingSignOnReadout(t *testing.T) {
	f, err := Parse(context.Background(), []byte(`
name: unsigned
rules: [a, obs]
influences: [{from: a, to: obs}]
observables: {c: [obs]}
`))
	require.NoError(t, err)

	_, err = f.Assemble(context.Background(), AssembleOptions{})
	var mse *influence.MissingSignError
	assert.ErrorAs(t, err, &mse)
}

func TestAssembly_NewChecker(t *testing.T) {
	f, err := Parse(context.Background(), []byte(mapkModel))
	require.NoError(t, err)
	a, err := f.Assemble(context.Background(), AssembleOptions{})
	require.NoError(t, err)

	c, err := a.NewChecker()
	require.NoError(t, err)

	report, err := c.CheckModel(context.Background(), a.Queries)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, result.PathsFound, report.Outcomes[0].Result.ResultCode)
	assert.Equal(t, result.PathsFound, report.Outcomes[1].Result.ResultCode)
}

// =============================================================================
// Provider
// =============================================================================

func TestProvider_CachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", mapkModel)
	p := NewProvider(path, AssembleOptions{})

	a1, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a1.Generation)

	a2, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	p.Invalidate()
	a3, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.NotSame(t, a1, a3)
	assert.Equal(t, uint64(2), p.Generation())

	a4, err := p.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), a4.Generation)
}

func TestProvider_KeepsLastGoodOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", mapkModel)
	p := NewProvider(path, AssembleOptions{})

	good, err := p.Get(context.Background(), false)
	require.NoError(t, err)

	writeFile(t, dir, "model.yaml", "name: broken")
	_, err = p.Get(context.Background(), true)
	assert.ErrorIs(t, err, ErrInvalidModel)

	writeFile(t, dir, "model.yaml", mapkModel)
	p.Invalidate()
	again, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Greater(t, again.Generation, good.Generation)
}

func TestProvider_ConcurrentGet(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", mapkModel)
	p := NewProvider(path, AssembleOptions{})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := p.Get(context.Background(), false)
			assert.NoError(t, err)
			assert.NotNil(t, a)
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, p.Generation(), uint64(1))
}

// =============================================================================
// Watcher
// =============================================================================

func TestWatcher_InvalidatesProvider(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", mapkModel)
	p := NewProvider(path, AssembleOptions{})
	_, err := p.Get(context.Background(), false)
	require.NoError(t, err)

	fired := make(chan ChangeOp, 4)
	w, err := WatchProvider(p, func(op ChangeOp) { fired <- op }, WatcherOptions{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsWatching())

	writeFile(t, dir, "other.yaml", "ignored")
	writeFile(t, dir, "model.yaml", strings.Replace(mapkModel, "name: mapk", "name: mapk2", 1))

	select {
	case op := <-fired:
		assert.Equal(t, ChangeWrite, op)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire")
	}

	a, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "mapk2", a.Name)
	assert.Equal(t, uint64(2), a.Generation)

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestChangeOpString(t *testing.T) {
	assert.Equal(t, "write", ChangeWrite.String())
	assert.Equal(t, "remove", ChangeRemove.String())
}
