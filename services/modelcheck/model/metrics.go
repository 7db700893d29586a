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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	loadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcheck_model_load_errors_total",
		Help: "Total model file load errors",
	})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modelcheck_model_load_duration_seconds",
		Help:    "Duration of model file loading and validation",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1},
	})

	assemblies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcheck_model_assemblies_total",
		Help: "Total model assemblies built by the provider",
	})

	prunedEdges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelcheck_model_pruned_total",
		Help: "Graph elements removed during assembly by kind",
	}, []string{"kind"})

	invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcheck_model_invalidations_total",
		Help: "Total provider invalidations",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("modelcheck.model")
