// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observables maps queried conditions and agents onto graph nodes.
//
// Index answers "which nodes read out this condition" and "which readouts
// does this rule move, and in which direction". Resolver answers "which
// rules have this agent as their causal subject".
//
// # Thread Safety
//
// Index and Resolver are populated once and then only read. Concurrent
// reads are safe; mutation concurrent with reads is not.
package observables

import (
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
)

// ErrNilGraph is returned when FromGraph is given a nil graph.
var ErrNilGraph = errors.New("graph must not be nil")

// Affected is a readout influenced by a rule and the sign of that influence.
type Affected struct {
	Observable string         `json:"observable" yaml:"observable"`
	Sign       influence.Sign `json:"sign" yaml:"sign"`
}

// Index maps conditions to observable nodes and rules to the observables
// they directly influence.
type Index struct {
	byCondition map[string][]string
	conditionOf map[string]string
	conditions  []string
	affected    map[string][]Affected
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byCondition: make(map[string][]string),
		conditionOf: make(map[string]string),
		affected:    make(map[string][]Affected),
	}
}

// AddObservable records node as a readout of condition. Adding the same
// pair twice has no effect.
func (ix *Index) AddObservable(condition, node string) {
	nodes, ok := ix.byCondition[condition]
	if !ok {
		ix.conditions = append(ix.conditions, condition)
	}
	if slices.Contains(nodes, node) {
		return
	}
	ix.byCondition[condition] = append(nodes, node)
	ix.conditionOf[node] = condition
}

// AddAffected records that rule influences observable with sign.
func (ix *Index) AddAffected(rule, observable string, sign influence.Sign) {
	ix.affected[rule] = append(ix.affected[rule], Affected{Observable: observable, Sign: sign})
}

// Observables returns the readout nodes for condition, or nil.
func (ix *Index) Observables(condition string) []string {
	return ix.byCondition[condition]
}

// Conditions returns every indexed condition in the order first added.
func (ix *Index) Conditions() []string {
	return slices.Clone(ix.conditions)
}

// IsObservable reports whether node is a readout of some condition.
func (ix *Index) IsObservable(node string) bool {
	_, ok := ix.conditionOf[node]
	return ok
}

// ConditionOf returns the condition a readout node belongs to.
func (ix *Index) ConditionOf(observable string) (string, bool) {
	c, ok := ix.conditionOf[observable]
	return c, ok
}

// Affected returns the readouts directly influenced by rule.
func (ix *Index) Affected(rule string) []Affected {
	return ix.affected[rule]
}

// FromGraph builds an index from condition bindings and the graph.
//
// Description:
//
//	Registers every (condition, node) binding in sorted condition order,
//	skipping nodes absent from the graph. Then, for every graph node in
//	insertion order, each distinct successor that is a readout becomes an
//	Affected entry signed by the resolved edge sign.
//
// Inputs:
//
//	g - The influence graph. Must not be nil.
//	conditions - Condition name to readout node names.
//
// Outputs:
//
//	*Index - The populated index.
//	error - ErrNilGraph, or an edge sign resolution error such as
//	        *influence.MissingSignError.
func FromGraph(g *influence.Graph, conditions map[string][]string) (*Index, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	ix := NewIndex()

	names := make([]string, 0, len(conditions))
	for name := range conditions {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, node := range conditions[name] {
			if g.HasNode(node) {
				ix.AddObservable(name, node)
			}
		}
	}

	for rule := range g.Nodes() {
		for succ := range g.Successors(rule) {
			if !ix.IsObservable(succ) {
				continue
			}
			sign, err := g.EdgeSign(rule, succ)
			if err != nil {
				return nil, fmt.Errorf("indexing observables of %s: %w", rule, err)
			}
			ix.AddAffected(rule, succ, sign)
		}
	}
	return ix, nil
}
