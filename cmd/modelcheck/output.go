// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/scoring"
)

// Output formats.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// =============================================================================
// OUTPUT TYPES
// =============================================================================

type checkOutput struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	Model     string          `json:"model" yaml:"model"`
	Explained int             `json:"explained" yaml:"explained"`
	Total     int             `json:"total" yaml:"total"`
	Duration  string          `json:"duration" yaml:"duration"`
	Outcomes  []outcomeOutput `json:"outcomes" yaml:"outcomes"`
}

type outcomeOutput struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty"`
	Query      string         `json:"query" yaml:"query"`
	ResultCode string         `json:"result_code" yaml:"result_code"`
	PathFound  bool           `json:"path_found" yaml:"path_found"`
	Metrics    []string       `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Paths      []string       `json:"paths,omitempty" yaml:"paths,omitempty"`
	Ranked     []rankedOutput `json:"ranked,omitempty" yaml:"ranked,omitempty"`
}

type rankedOutput struct {
	Path  string  `json:"path" yaml:"path"`
	Score float64 `json:"score" yaml:"score"`
}

func newCheckOutput(name string, r *checker.Report) checkOutput {
	out := checkOutput{
		RunID:     r.RunID,
		Model:     name,
		Explained: r.Explained(),
		Total:     len(r.Outcomes),
		Duration:  r.Duration.String(),
		Outcomes:  make([]outcomeOutput, len(r.Outcomes)),
	}
	for i, o := range r.Outcomes {
		oo := outcomeOutput{ID: o.Query.ID, Query: o.Query.String()}
		if o.Result != nil {
			oo.ResultCode = o.Result.ResultCode.String()
			oo.PathFound = o.Result.PathFound
			for _, m := range o.Result.PathMetrics {
				oo.Metrics = append(oo.Metrics, m.String())
			}
			for _, p := range o.Result.Paths {
				oo.Paths = append(oo.Paths, p.String())
			}
		}
		out.Outcomes[i] = oo
	}
	return out
}

func newRankedOutput(ranked []scoring.Scored) []rankedOutput {
	out := make([]rankedOutput, len(ranked))
	for i, s := range ranked {
		out[i] = rankedOutput{Path: s.Path.String(), Score: s.Score}
	}
	return out
}

// writeOutput encodes v as YAML or indented JSON.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
