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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/model"
)

// checkFlags holds flags for the check command.
type checkFlags struct {
	modelPath       string
	queriesPath     string
	dataPath        string
	maxPaths        int
	maxPathLength   int
	sample          bool
	seed            uint64
	output          string
	failUnexplained bool
}

func newCheckCmd(app *cliApp) *cobra.Command {
	f := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check queries against a model",
		Long: `Assemble the model's influence graph and check every query.

Queries come from --queries when given, otherwise from the model file.
With --data, the witness paths of each query are ranked against measured
values keyed by observable condition.

Examples:
  modelcheck check --model egfr.yaml
  modelcheck check --model egfr.yaml --queries stmts.yaml --output json
  modelcheck check --model egfr.yaml --max-paths 5 --max-path-length 8
  modelcheck check --model egfr.yaml --sample --seed 7 --data measured.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, app, f)
		},
	}

	cmd.Flags().StringVarP(&f.modelPath, "model", "m", "",
		"Model file (required)")
	cmd.Flags().StringVar(&f.queriesPath, "queries", "",
		"Query file overriding the model's queries")
	cmd.Flags().StringVar(&f.dataPath, "data", "",
		"Measured values by condition, for ranking paths")
	cmd.Flags().IntVar(&f.maxPaths, "max-paths", 0,
		"Default paths per query (overrides config)")
	cmd.Flags().IntVar(&f.maxPathLength, "max-path-length", 0,
		"Default maximum path length (overrides config)")
	cmd.Flags().BoolVar(&f.sample, "sample", false,
		"Use the weighted path sampler")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0,
		"Sampler seed (0 = config seed)")
	cmd.Flags().StringVarP(&f.output, "output", "o", formatYAML,
		"Output format: yaml, json")
	cmd.Flags().BoolVar(&f.failUnexplained, "fail-unexplained", false,
		"Exit with status 2 if any query is unexplained")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// runCheck executes the check command.
func runCheck(cmd *cobra.Command, app *cliApp, f *checkFlags) error {
	ctx := cmd.Context()
	logger := app.baseLogger()

	asm, err := loadAssembly(ctx, app, f.modelPath)
	if err != nil {
		return err
	}

	cfg := app.cfg
	if cmd.Flags().Changed("max-paths") {
		cfg.Check.MaxPaths = f.maxPaths
	}
	if cmd.Flags().Changed("max-path-length") {
		cfg.Check.MaxPathLength = f.maxPathLength
	}
	if f.sample {
		cfg.Check.Sampling = true
	}
	if f.seed != 0 {
		cfg.Check.Seed = f.seed
	}

	c, err := asm.NewChecker(cfg.CheckerOptions(logger)...)
	if err != nil {
		return fmt.Errorf("creating checker: %w", err)
	}

	queries, err := checkerQueries(ctx, f.queriesPath, asm.Queries)
	if err != nil {
		return err
	}

	report, err := c.CheckModel(ctx, queries)
	if err != nil {
		return err
	}

	out := newCheckOutput(asm.Name, report)
	if f.dataPath != "" {
		measured, err := loadMeasurements(f.dataPath)
		if err != nil {
			return err
		}
		for i, o := range report.Outcomes {
			if o.Result == nil || len(o.Result.Paths) == 0 {
				continue
			}
			ranked, err := c.ScorePaths(o.Result.Paths, measured, cfg.ScoringOptions(logger)...)
			if err != nil {
				return fmt.Errorf("scoring %s: %w", o.Query, err)
			}
			out.Outcomes[i].Ranked = newRankedOutput(ranked)
		}
	}

	if err := writeOutput(cmd.OutOrStdout(), f.output, out); err != nil {
		return err
	}
	if f.failUnexplained && out.Explained < out.Total {
		return fmt.Errorf("%w: %d of %d", errUnexplained, out.Total-out.Explained, out.Total)
	}
	return nil
}

// loadAssembly loads and assembles a model with the configured options.
func loadAssembly(ctx context.Context, app *cliApp, path string) (*model.Assembly, error) {
	file, err := model.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	opts, err := app.cfg.AssembleOptions(app.baseLogger())
	if err != nil {
		return nil, err
	}
	return file.Assemble(ctx, opts)
}

// loadMeasurements reads a YAML map of condition name to measured value.
func loadMeasurements(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}
	measured := make(map[string]float64)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&measured); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing data file %s: %w", path, err)
	}
	return measured, nil
}

// checkerQueries returns the queries in path, or fallback when path is
// empty.
func checkerQueries(ctx context.Context, path string, fallback []checker.Query) ([]checker.Query, error) {
	if path == "" {
		return fallback, nil
	}
	return model.LoadQueries(ctx, path)
}
