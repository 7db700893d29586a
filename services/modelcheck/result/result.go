// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package result defines the verdict returned for a model-checking query.
//
// A PathResult with PathFound == false is a normal outcome. Conditions that
// make a query unsatisfiable are expressed as a Code, never as an error.
package result

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
)

// Code classifies the outcome of a query.
type Code string

const (
	// StatementTypeNotHandled means the query kind has no handler.
	StatementTypeNotHandled Code = "STATEMENT_TYPE_NOT_HANDLED"

	// SubjectNodesNotFound means the subject agent has no rules in the model.
	SubjectNodesNotFound Code = "SUBJECT_NODES_NOT_FOUND"

	// ObservablesNotFound means the object condition maps to no observable.
	ObservablesNotFound Code = "OBSERVABLES_NOT_FOUND"

	// NoPathsFound means the search ran and found no sign-consistent path.
	NoPathsFound Code = "NO_PATHS_FOUND"

	// MaxPathLengthExceeded means paths exist but the shortest one is longer
	// than the requested bound.
	MaxPathLengthExceeded Code = "MAX_PATH_LENGTH_EXCEEDED"

	// PathsFound means at least one witness path was found.
	PathsFound Code = "PATHS_FOUND"

	// InputRulesNotFound means the subject has rules but none where it acts
	// as the causal subject.
	InputRulesNotFound Code = "INPUT_RULES_NOT_FOUND"

	// MaxPathsZero means the query is explainable but zero explicit paths
	// were requested.
	MaxPathsZero Code = "MAX_PATHS_ZERO"
)

// String returns the code name.
func (c Code) String() string {
	return string(c)
}

// PathMetric summarises one witness without materialising the path.
type PathMetric struct {
	Source   string         `json:"source" yaml:"source"`
	Target   string         `json:"target" yaml:"target"`
	Polarity influence.Sign `json:"polarity" yaml:"polarity"`
	Length   int            `json:"length" yaml:"length"`
}

// String renders the metric as "source -> target (+, 2)".
func (m PathMetric) String() string {
	return fmt.Sprintf("%s -> %s (%s, %d)", m.Source, m.Target, m.Polarity, m.Length)
}

// PathResult is the outcome of checking one query.
type PathResult struct {
	PathFound     bool             `json:"path_found" yaml:"path_found"`
	ResultCode    Code             `json:"result_code" yaml:"result_code"`
	PathMetrics   []PathMetric     `json:"path_metrics" yaml:"path_metrics"`
	Paths         []influence.Path `json:"paths" yaml:"paths"`
	MaxPaths      int              `json:"max_paths" yaml:"max_paths"`
	MaxPathLength int              `json:"max_path_length" yaml:"max_path_length"`
}

// New creates a result with no metrics and no paths.
func New(found bool, code Code, maxPaths, maxPathLength int) *PathResult {
	return &PathResult{
		PathFound:     found,
		ResultCode:    code,
		Paths:         make([]influence.Path, 0),
		MaxPaths:      maxPaths,
		MaxPathLength: maxPathLength,
	}
}

// Explained reports whether the model explains the query within the
// requested bounds. MAX_PATH_LENGTH_EXCEEDED sets PathFound because longer
// paths exist, but it does not count as explained.
func (r *PathResult) Explained() bool {
	return r.PathFound && r.ResultCode != MaxPathLengthExceeded
}

// AddPath appends a witness path.
func (r *PathResult) AddPath(p influence.Path) {
	r.Paths = append(r.Paths, p)
}

// ShortestMetric returns the metric with the smallest length.
func (r *PathResult) ShortestMetric() (PathMetric, bool) {
	if len(r.PathMetrics) == 0 {
		return PathMetric{}, false
	}
	best := r.PathMetrics[0]
	for _, m := range r.PathMetrics[1:] {
		if m.Length < best.Length {
			best = m
		}
	}
	return best, true
}

// String renders a multi-line human-readable summary.
func (r *PathResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PathResult(found=%t, code=%s, max_paths=%d, max_path_length=%d)",
		r.PathFound, r.ResultCode, r.MaxPaths, r.MaxPathLength)
	if len(r.PathMetrics) > 0 {
		b.WriteString("\n  metrics:")
		for _, m := range r.PathMetrics {
			b.WriteString("\n    ")
			b.WriteString(m.String())
		}
	}
	if len(r.Paths) > 0 {
		b.WriteString("\n  paths:")
		for _, p := range r.Paths {
			b.WriteString("\n    ")
			b.WriteString(p.String())
		}
	}
	return b.String()
}
