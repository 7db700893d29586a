// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influence provides the signed influence graph used for model checking.
//
// An influence graph is a directed multigraph whose nodes are the rules of a
// mechanistic model and whose edges say that firing one rule tends to
// increase (+1) or decrease (-1) the firing rate of another.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use while it is being built or pruned.
// It is designed for:
//   - Single-writer access during build and cleanup (AddNode, AddEdge,
//     RemoveSelfLoops, RemoveParameterNodes, PruneNontransitivePairs)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the graph can be safely read from multiple goroutines.
//
// # Lifecycle
//
//  1. Create with NewGraph()
//  2. Build with AddNode() and AddEdge() calls
//  3. Optionally clean up with RemoveSelfLoops, RemoveParameterNodes and
//     PruneNontransitivePairs
//  4. Call Freeze() to finalize
//  5. Query with Predecessors(), Successors(), EdgeSign()
package influence

import (
	"errors"
	"fmt"
)

// Sentinel errors for influence graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("influence graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge or query references a
	// node that is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when resolving the sign of a node pair
	// that has no edge between them.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateNode is returned when adding a node whose ID already exists.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrInvalidNode is returned when adding a node with an empty ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidSign is returned when an edge is declared with a sign
	// outside {+1, -1}.
	ErrInvalidSign = errors.New("invalid edge sign")

	// ErrConflictingSigns is returned by EdgeSign under ConflictReject when
	// parallel edges between the same pair disagree.
	ErrConflictingSigns = errors.New("parallel edges have conflicting signs")

	// ErrMaxNodesExceeded is returned when the graph is at node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph is at edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")
)

// MissingSignError reports an edge bundle in which no edge carries a sign.
//
// This is an upstream extraction bug and is never silently defaulted.
type MissingSignError struct {
	From string
	To   string
}

// Error implements error.
func (e *MissingSignError) Error() string {
	return fmt.Sprintf("no sign attribute for edge (%s, %s)", e.From, e.To)
}
