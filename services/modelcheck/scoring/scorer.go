// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring ranks explanatory paths against measured data.
//
// Each rule on a path predicts a direction of change for the readouts it
// directly influences. The score of a path is the log-probability, under a
// Gaussian measurement model centred on each measured value, that every
// prediction has the right sign.
package scoring

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/observables"
)

// DefaultSigma is the default standard deviation of measurement noise.
const DefaultSigma = 0.15

var (
	// ErrNilIndex is returned when a scorer is created without an index.
	ErrNilIndex = errors.New("observable index must not be nil")

	// ErrInvalidSigma is returned for a non-positive or non-finite sigma.
	ErrInvalidSigma = errors.New("sigma must be a positive finite number")
)

// Options configures scoring.
type Options struct {
	// Sigma is the measurement noise standard deviation. Default: 0.15
	Sigma float64

	// LossOfFunction flips every prediction, for explaining the effect of
	// an inhibitor or knockout.
	LossOfFunction bool

	// IncludeFinalNode also scores the rule immediately before the
	// observable. The observable itself is never scored.
	IncludeFinalNode bool

	// Logger receives per-node scoring detail at debug level.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Scorer.
type Option func(*Options)

// WithSigma sets the measurement noise standard deviation.
func WithSigma(sigma float64) Option {
	return func(o *Options) {
		o.Sigma = sigma
	}
}

// WithLossOfFunction sets whether predictions are inverted.
func WithLossOfFunction(v bool) Option {
	return func(o *Options) {
		o.LossOfFunction = v
	}
}

// WithIncludeFinalNode sets whether the last rule before the observable is
// scored.
func WithIncludeFinalNode(v bool) Option {
	return func(o *Options) {
		o.IncludeFinalNode = v
	}
}

// WithLogger sets the scorer logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Scorer computes path scores. It is immutable and safe for concurrent use.
type Scorer struct {
	index   *observables.Index
	options Options
	logger  *slog.Logger
}

// Scored pairs a path with its score.
type Scored struct {
	Path  influence.Path `json:"path" yaml:"path"`
	Score float64        `json:"score" yaml:"score"`
}

// New creates a scorer over index.
//
// Errors:
//
//	ErrNilIndex - index is nil
//	ErrInvalidSigma - sigma is zero, negative, NaN or infinite
func New(index *observables.Index, opts ...Option) (*Scorer, error) {
	if index == nil {
		return nil, ErrNilIndex
	}
	o := Options{Sigma: DefaultSigma}
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.Sigma > 0) || math.IsInf(o.Sigma, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigma, o.Sigma)
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{index: index, options: o, logger: logger}, nil
}

// Score returns the log-probability of path given measured values.
//
// Description:
//
//	measured maps a condition to its measured value; the index resolves
//	each condition to its readout nodes. A condition that is present is
//	measured, whatever its value.
//
//	For each scored step and each readout the rule directly influences
//	that has a measurement, the predicted sign is step polarity times
//	influence sign, inverted for loss of function. A prediction <= 0 adds
//	log P(X <= 0) and a positive one adds log P(X > 0), X ~ N(measured,
//	sigma). A step with no measured readout adds log P(X <= 0) for
//	X ~ N(0, sigma), which is log 1/2.
//
//	The last step (the observable) is never scored; the one before it is
//	scored only with IncludeFinalNode.
//
// Outputs:
//
//	float64 - The score, <= 0. Higher is better.
func (s *Scorer) Score(path influence.Path, measured map[string]float64) float64 {
	values := s.observableValues(measured)
	sigma := s.options.Sigma
	flip := influence.Positive
	if s.options.LossOfFunction {
		flip = influence.Negative
	}

	end := len(path) - 2
	if s.options.IncludeFinalNode {
		end = len(path) - 1
	}

	var total float64
	for i := 0; i < end; i++ {
		st := path[i]
		scored := false
		for _, a := range s.index.Affected(st.Node) {
			v, ok := values[a.Observable]
			if !ok {
				continue
			}
			scored = true
			predicted := st.Polarity * a.Sign * flip
			var lp float64
			if predicted <= 0 {
				lp = normLogCDF(0, v, sigma)
			} else {
				lp = normLogSF(0, v, sigma)
			}
			total += lp
			s.logger.Debug("scored rule effect",
				slog.String("rule", st.Node),
				slog.String("observable", a.Observable),
				slog.Int("predicted", int(predicted)),
				slog.Float64("measured", v),
				slog.Float64("log_prob", lp),
			)
		}
		if !scored {
			total += normLogCDF(0, 0, sigma)
		}
	}
	return total
}

// Rank scores paths and orders them by ascending length, then descending
// score. Ties keep input order.
func (s *Scorer) Rank(paths []influence.Path, measured map[string]float64) []Scored {
	out := make([]Scored, len(paths))
	for i, p := range paths {
		out[i] = Scored{Path: p, Score: s.Score(p, measured)}
	}
	slices.SortStableFunc(out, func(a, b Scored) int {
		if c := cmp.Compare(a.Path.Len(), b.Path.Len()); c != 0 {
			return c
		}
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// observableValues expands condition-keyed measurements to readout nodes.
func (s *Scorer) observableValues(measured map[string]float64) map[string]float64 {
	values := make(map[string]float64)
	for cond, v := range measured {
		for _, obs := range s.index.Observables(cond) {
			values[obs] = v
		}
	}
	return values
}
