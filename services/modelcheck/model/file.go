// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model reads YAML model descriptions and assembles them into the
// structures the checker works on.
//
// A model file lists rules, the signed influences between them, readout
// nodes per condition and the rules each agent takes part in. Assemble
// turns a parsed File into a frozen influence graph plus its observable
// index and source resolver. Provider caches the current Assembly and
// rebuilds it after Invalidate; Watcher invalidates a Provider when the
// file changes on disk.
package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxModelFileSize is the largest model or query file accepted (8MB).
	MaxModelFileSize = 8 * 1024 * 1024

	// MaxRules bounds the number of rules in one model.
	MaxRules = 100_000
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrFileTooLarge is returned when a file exceeds MaxModelFileSize.
	ErrFileTooLarge = errors.New("model file too large")

	// ErrInvalidModel is returned when a model fails validation.
	ErrInvalidModel = errors.New("invalid model")
)

// =============================================================================
// Types (concrete YAML shapes)
// =============================================================================

// File is the root of a YAML model description.
type File struct {
	// Name labels the model in logs and reports.
	Name string `yaml:"name" validate:"required"`

	// Rules are the graph nodes.
	Rules []string `yaml:"rules" validate:"required,min=1,max=100000,dive,required"`

	// Parameters are bookkeeping nodes removed before checking. Influences
	// may reference them.
	Parameters []string `yaml:"parameters,omitempty" validate:"dive,required"`

	// Influences are the signed edges. Parallel edges are allowed.
	Influences []Influence `yaml:"influences" validate:"dive"`

	// Observables maps a condition name to its readout rules.
	Observables map[string][]string `yaml:"observables,omitempty" validate:"dive,keys,required,endkeys,dive,required"`

	// Agents maps an agent name to the rules it takes part in.
	Agents map[string]Agent `yaml:"agents,omitempty" validate:"dive,keys,required,endkeys"`

	// RuleObjects maps a rule to the entity it acts on.
	RuleObjects map[string]string `yaml:"rule_objects,omitempty"`

	// InitialAmounts maps an entity to its starting abundance.
	InitialAmounts map[string]float64 `yaml:"initial_amounts,omitempty" validate:"dive,gte=0"`

	// Queries are optional relationships to check against this model.
	Queries []Query `yaml:"queries,omitempty" validate:"dive"`
}

// Influence is one signed edge. A missing sign is kept as unsigned and
// fails at resolution time unless a parallel edge carries one.
type Influence struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
	Sign *int   `yaml:"sign,omitempty" validate:"omitnil,oneof=-1 1"`
}

// Agent lists the rules mentioning an agent and the subset where it is the
// causal subject.
type Agent struct {
	Rules     []string `yaml:"rules" validate:"required,min=1,dive,required"`
	SubjectOf []string `yaml:"subject_of,omitempty" validate:"dive,required"`
}

// Query is the YAML form of a checker query.
type Query struct {
	ID            string `yaml:"id,omitempty"`
	Kind          string `yaml:"kind" validate:"required"`
	Subject       string `yaml:"subject,omitempty"`
	Object        string `yaml:"object" validate:"required"`
	MaxPaths      *int   `yaml:"max_paths,omitempty" validate:"omitempty,gte=0"`
	MaxPathLength *int   `yaml:"max_path_length,omitempty" validate:"omitempty,gte=0"`
}

// Checker converts q to a checker query.
func (q Query) Checker() checker.Query {
	return checker.Query{
		ID:            q.ID,
		Kind:          checker.QueryKind(q.Kind),
		Subject:       q.Subject,
		Object:        q.Object,
		MaxPaths:      q.MaxPaths,
		MaxPathLength: q.MaxPathLength,
	}
}

// CheckerQueries converts every query in the file.
func (f *File) CheckerQueries() []checker.Query {
	out := make([]checker.Query, len(f.Queries))
	for i, q := range f.Queries {
		out[i] = q.Checker()
	}
	return out
}

// queryFile is the root of a standalone query file.
type queryFile struct {
	Queries []Query `yaml:"queries" validate:"dive"`
}

var validate = validator.New()

// =============================================================================
// Loading
// =============================================================================

// Load reads and validates a model file.
//
// Description:
//
//	Rejects files larger than MaxModelFileSize before reading them. The
//	YAML is decoded strictly, so unknown keys are errors, then validated
//	with struct tags and cross-reference checks.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Path to the YAML file.
//
// Outputs:
//
//	*File - The parsed model.
//	error - I/O errors, ErrFileTooLarge, or ErrInvalidModel.
func Load(ctx context.Context, path string) (*File, error) {
	ctx, span := tracer.Start(ctx, "model.Load",
		trace.WithAttributes(attribute.String("model.path", path)),
	)
	defer span.End()

	start := time.Now()
	data, err := readLimited(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		loadErrors.Inc()
		return nil, err
	}

	f, err := Parse(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		loadErrors.Inc()
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	loadDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("model.name", f.Name),
		attribute.Int("model.rules", len(f.Rules)),
		attribute.Int("model.influences", len(f.Influences)),
	)
	return f, nil
}

// Parse decodes and validates model YAML.
func Parse(ctx context.Context, data []byte) (*File, error) {
	_, span := tracer.Start(ctx, "model.Parse")
	defer span.End()

	var f File
	if err := decodeStrict(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if err := f.crossCheck(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	return &f, nil
}

// LoadQueries reads a standalone query file with a top-level "queries" list.
func LoadQueries(ctx context.Context, path string) ([]checker.Query, error) {
	_, span := tracer.Start(ctx, "model.LoadQueries",
		trace.WithAttributes(attribute.String("model.path", path)),
	)
	defer span.End()

	data, err := readLimited(path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var qf queryFile
	if err := decodeStrict(data, &qf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidModel, path, err)
	}
	if err := validate.Struct(&qf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidModel, path, err)
	}
	out := make([]checker.Query, len(qf.Queries))
	for i, q := range qf.Queries {
		out[i] = q.Checker()
	}
	span.SetAttributes(attribute.Int("model.queries", len(out)))
	return out, nil
}

func readLimited(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat model file: %w", err)
	}
	if info.Size() > MaxModelFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxModelFileSize)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return data, nil
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// crossCheck verifies that every name the model references is declared.
func (f *File) crossCheck() error {
	rules := make(map[string]struct{}, len(f.Rules))
	for _, r := range f.Rules {
		if _, dup := rules[r]; dup {
			return fmt.Errorf("duplicate rule %q", r)
		}
		rules[r] = struct{}{}
	}
	nodes := make(map[string]struct{}, len(rules)+len(f.Parameters))
	for r := range rules {
		nodes[r] = struct{}{}
	}
	for _, p := range f.Parameters {
		if _, clash := rules[p]; clash {
			return fmt.Errorf("parameter %q is also a rule", p)
		}
		nodes[p] = struct{}{}
	}

	for i, in := range f.Influences {
		if _, ok := nodes[in.From]; !ok {
			return fmt.Errorf("influence %d: unknown source %q", i, in.From)
		}
		if _, ok := nodes[in.To]; !ok {
			return fmt.Errorf("influence %d: unknown target %q", i, in.To)
		}
	}
	for cond, obs := range f.Observables {
		for _, o := range obs {
			if _, ok := rules[o]; !ok {
				return fmt.Errorf("condition %q: unknown readout rule %q", cond, o)
			}
		}
	}
	for name, a := range f.Agents {
		member := make(map[string]struct{}, len(a.Rules))
		for _, r := range a.Rules {
			if _, ok := rules[r]; !ok {
				return fmt.Errorf("agent %q: unknown rule %q", name, r)
			}
			member[r] = struct{}{}
		}
		for _, r := range a.SubjectOf {
			if _, ok := member[r]; !ok {
				return fmt.Errorf("agent %q: subject rule %q not in its rules", name, r)
			}
		}
	}
	for r := range f.RuleObjects {
		if _, ok := rules[r]; !ok {
			return fmt.Errorf("rule_objects: unknown rule %q", r)
		}
	}
	return nil
}
