// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observables

import (
	"slices"
)

// Resolver maps an agent to the rules in which it acts as causal subject.
//
// An agent may appear in many rules as a bystander or cofactor. Only rules
// that both mention the agent and are annotated with it as subject count as
// input rules.
type Resolver struct {
	rules    map[string][]string
	subjects map[string]map[string]struct{}
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		rules:    make(map[string][]string),
		subjects: make(map[string]map[string]struct{}),
	}
}

// Add registers the rules mentioning agent and the subset where agent is
// the subject. Repeated calls accumulate.
func (r *Resolver) Add(agent string, rules, subjectOf []string) {
	for _, rule := range rules {
		if !slices.Contains(r.rules[agent], rule) {
			r.rules[agent] = append(r.rules[agent], rule)
		}
	}
	if _, ok := r.rules[agent]; !ok {
		r.rules[agent] = make([]string, 0)
	}
	set, ok := r.subjects[agent]
	if !ok {
		set = make(map[string]struct{}, len(subjectOf))
		r.subjects[agent] = set
	}
	for _, rule := range subjectOf {
		set[rule] = struct{}{}
	}
}

// Known reports whether agent was registered with at least one rule.
func (r *Resolver) Known(agent string) bool {
	return len(r.rules[agent]) > 0
}

// Rules returns every rule mentioning agent.
func (r *Resolver) Rules(agent string) []string {
	return r.rules[agent]
}

// InputRules returns the rules where agent is the causal subject, in the
// order they were registered.
func (r *Resolver) InputRules(agent string) []string {
	set := r.subjects[agent]
	var out []string
	for _, rule := range r.rules[agent] {
		if _, ok := set[rule]; ok {
			out = append(out, rule)
		}
	}
	return out
}
