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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelcheck/services/modelcheck/model"
)

type pruneOutput struct {
	Model         string            `json:"model" yaml:"model"`
	Nodes         int               `json:"nodes" yaml:"nodes"`
	Edges         int               `json:"edges" yaml:"edges"`
	NegativeEdges int               `json:"negative_edges" yaml:"negative_edges"`
	UnsignedEdges int               `json:"unsigned_edges" yaml:"unsigned_edges"`
	Conditions    int               `json:"conditions" yaml:"conditions"`
	Removed       model.PruneReport `json:"removed" yaml:"removed"`
}

func newPruneCmd(app *cliApp) *cobra.Command {
	var (
		modelPath string
		output    string
		noPrune   bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Assemble a model and report what pruning removed",
		Long: `Assemble the model's influence graph and print its size together with
the self-loops, parameter nodes and mirrored rule pairs that were removed.

Examples:
  modelcheck prune --model egfr.yaml
  modelcheck prune --model egfr.yaml --no-prune --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cfg.Check.Prune = !noPrune
			asm, err := loadAssembly(cmd.Context(), app, modelPath)
			if err != nil {
				return err
			}
			stats := asm.Graph.Stats()
			return writeOutput(cmd.OutOrStdout(), output, pruneOutput{
				Model:         asm.Name,
				Nodes:         stats.NodeCount,
				Edges:         stats.EdgeCount,
				NegativeEdges: stats.NegativeEdges,
				UnsignedEdges: stats.UnsignedEdges,
				Conditions:    len(asm.Index.Conditions()),
				Removed:       asm.Pruned,
			})
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "",
		"Model file (required)")
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML,
		"Output format: yaml, json")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false,
		"Skip mirrored-pair pruning")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
