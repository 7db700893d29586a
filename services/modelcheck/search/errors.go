// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import "errors"

// Sentinel errors for path search.
var (
	// ErrNilGraph is returned when an engine is created without a graph.
	ErrNilGraph = errors.New("graph must not be nil")

	// ErrEmptyGraph is returned when an engine is created over a graph
	// with no nodes. This is a configuration error, not a query outcome.
	ErrEmptyGraph = errors.New("influence graph has no nodes")

	// ErrInvalidPolarity is returned when a query polarity is not +1 or -1.
	ErrInvalidPolarity = errors.New("polarity must be +1 or -1")

	// ErrInvalidBound is returned for negative max_paths or max_path_length.
	ErrInvalidBound = errors.New("path bounds must not be negative")

	// ErrEmptyPath is returned when orienting a path with no steps.
	ErrEmptyPath = errors.New("path has no steps")
)
