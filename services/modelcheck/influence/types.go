// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influence

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of rules a graph can hold.
	DefaultMaxNodes = 100_000

	// DefaultMaxEdges is the default maximum number of influences a graph can hold.
	DefaultMaxEdges = 2_000_000
)

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph accepts mutations.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Sign is the polarity of an influence or of a path.
//
// Signs multiply like integers: Positive*Negative == Negative.
type Sign int8

const (
	// Unsigned marks an edge whose sign attribute is absent.
	Unsigned Sign = 0

	// Positive marks an activating influence.
	Positive Sign = 1

	// Negative marks an inhibiting influence.
	Negative Sign = -1
)

// String returns "+", "-" or "?".
func (s Sign) String() string {
	switch s {
	case Positive:
		return "+"
	case Negative:
		return "-"
	default:
		return "?"
	}
}

// Valid reports whether s is +1 or -1.
func (s Sign) Valid() bool {
	return s == Positive || s == Negative
}

// Flip returns the opposite sign.
func (s Sign) Flip() Sign {
	return -s
}

// SignOf converts an integer polarity to a Sign.
//
// Any positive value maps to Positive, any negative value to Negative and
// zero to Unsigned.
func SignOf(v int) Sign {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	default:
		return Unsigned
	}
}

// Edge is a single signed influence between two rules.
//
// Multiple edges between the same ordered pair are allowed; EdgeSign
// collapses them into one sign.
type Edge struct {
	// FromID is the influencing rule.
	FromID string

	// ToID is the influenced rule.
	ToID string

	// Sign is the declared polarity, or Unsigned when absent.
	Sign Sign
}

// Node is a rule in the influence graph with its incident edges.
type Node struct {
	// ID is the rule name.
	ID string

	// Outgoing contains edges where this node is the source.
	Outgoing []*Edge

	// Incoming contains edges where this node is the target.
	Incoming []*Edge
}

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes. Default: 100,000
	MaxNodes int

	// MaxEdges is the maximum number of edges. Default: 2,000,000
	MaxEdges int

	// ConflictPolicy decides how EdgeSign resolves disagreeing parallel
	// edges. Default: ConflictPreferPositive
	ConflictPolicy ConflictPolicy

	// Logger receives conflict warnings. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes:       DefaultMaxNodes,
		MaxEdges:       DefaultMaxEdges,
		ConflictPolicy: ConflictPreferPositive,
	}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// WithConflictPolicy sets how conflicting parallel edge signs are resolved.
func WithConflictPolicy(p ConflictPolicy) GraphOption {
	return func(o *GraphOptions) {
		o.ConflictPolicy = p
	}
}

// WithLogger sets the logger used for sign conflict warnings.
func WithLogger(l *slog.Logger) GraphOption {
	return func(o *GraphOptions) {
		o.Logger = l
	}
}

// Graph is a signed directed multigraph over model rules.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use during building. After Freeze()
//	it can be safely read from multiple goroutines.
type Graph struct {
	// nodes maps rule name to Node.
	nodes map[string]*Node

	// order holds node IDs in insertion order so that every iteration over
	// the graph is deterministic.
	order []string

	// edgeCount is the number of edges currently in the graph.
	edgeCount int

	state   GraphState
	options GraphOptions
	logger  *slog.Logger

	// warned records pairs already reported as conflicting so each pair is
	// logged once per graph.
	warned sync.Map

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze() was called.
	BuiltAtMilli int64
}

// NewGraph creates a new empty influence graph.
//
// Description:
//
//	Creates a graph in the Building state, ready to accept AddNode and
//	AddEdge calls. Freeze it before sharing it between goroutines.
//
// Example:
//
//	g := NewGraph(WithConflictPolicy(ConflictReject))
//	_, _ = g.AddNode("R1")
//	_, _ = g.AddNode("R2")
//	_ = g.AddEdge("R1", "R2", Positive)
//	g.Freeze()
func NewGraph(opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Graph{
		nodes:   make(map[string]*Node),
		order:   make([]string, 0),
		state:   GraphStateBuilding,
		options: options,
		logger:  logger,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode. Irreversible.
func (g *Graph) Freeze() {
	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph, counting parallel
// edges individually.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// HasNode reports whether a rule with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether at least one edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	node, ok := g.nodes[from]
	if !ok {
		return false
	}
	for _, e := range node.Outgoing {
		if e.ToID == to {
			return true
		}
	}
	return false
}

// AddNode adds a rule to the graph.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrInvalidNode - ID is empty
//	ErrDuplicateNode - Node with same ID already exists
//	ErrMaxNodesExceeded - Graph is at node capacity
func (g *Graph) AddNode(id string) (*Node, error) {
	if g.state == GraphStateReadOnly {
		return nil, ErrGraphFrozen
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return nil, ErrMaxNodesExceeded
	}
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}

	node := &Node{
		ID:       id,
		Outgoing: make([]*Edge, 0),
		Incoming: make([]*Edge, 0),
	}
	g.nodes[id] = node
	g.order = append(g.order, id)
	return node, nil
}

// AddEdge creates a signed influence from one rule to another.
//
// Description:
//
//	Both nodes must already exist. Parallel edges are allowed. Pass
//	Unsigned when the upstream model declared no sign; resolving such a
//	pair later fails with *MissingSignError unless another parallel edge
//	carries a sign.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrInvalidSign - sign is not Positive, Negative or Unsigned
//	ErrNodeNotFound - Source or target node doesn't exist
//	ErrMaxEdgesExceeded - Graph is at edge capacity
func (g *Graph) AddEdge(from, to string, sign Sign) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}
	if sign != Unsigned && !sign.Valid() {
		return fmt.Errorf("%w: %d on (%s, %s)", ErrInvalidSign, sign, from, to)
	}
	if g.edgeCount >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}

	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrNodeNotFound, from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, to)
	}

	edge := &Edge{FromID: from, ToID: to, Sign: sign}
	fromNode.Outgoing = append(fromNode.Outgoing, edge)
	toNode.Incoming = append(toNode.Incoming, edge)
	g.edgeCount++
	return nil
}

// Nodes returns an iterator over node IDs in insertion order.
func (g *Graph) Nodes() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, id := range g.order {
			if !yield(id) {
				return
			}
		}
	}
}

// Edges returns an iterator over every edge, grouped by source node in
// insertion order.
func (g *Graph) Edges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for _, id := range g.order {
			for _, e := range g.nodes[id].Outgoing {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Predecessors returns the distinct rules with an edge into id, in the
// order their first edge was added. Unknown IDs yield nothing.
func (g *Graph) Predecessors(id string) iter.Seq[string] {
	return func(yield func(string) bool) {
		node, ok := g.nodes[id]
		if !ok {
			return
		}
		seen := make(map[string]struct{}, len(node.Incoming))
		for _, e := range node.Incoming {
			if _, dup := seen[e.FromID]; dup {
				continue
			}
			seen[e.FromID] = struct{}{}
			if !yield(e.FromID) {
				return
			}
		}
	}
}

// Successors returns the distinct rules that id has an edge into, in the
// order their first edge was added. Unknown IDs yield nothing.
func (g *Graph) Successors(id string) iter.Seq[string] {
	return func(yield func(string) bool) {
		node, ok := g.nodes[id]
		if !ok {
			return
		}
		seen := make(map[string]struct{}, len(node.Outgoing))
		for _, e := range node.Outgoing {
			if _, dup := seen[e.ToID]; dup {
				continue
			}
			seen[e.ToID] = struct{}{}
			if !yield(e.ToID) {
				return
			}
		}
	}
}

// successorSet returns the distinct successors of id as a set.
func (g *Graph) successorSet(id string) map[string]struct{} {
	set := make(map[string]struct{})
	for s := range g.Successors(id) {
		set[s] = struct{}{}
	}
	return set
}

// GraphStats contains statistics about the graph.
type GraphStats struct {
	// NodeCount is the total number of nodes.
	NodeCount int

	// EdgeCount is the total number of edges, parallel edges included.
	EdgeCount int

	// UnsignedEdges counts edges declared without a sign.
	UnsignedEdges int

	// NegativeEdges counts inhibiting edges.
	NegativeEdges int

	// State is the current graph state.
	State GraphState
}

// Stats returns statistics about the graph in O(V + E).
func (g *Graph) Stats() GraphStats {
	stats := GraphStats{
		NodeCount: len(g.nodes),
		EdgeCount: g.edgeCount,
		State:     g.state,
	}
	for e := range g.Edges() {
		switch e.Sign {
		case Unsigned:
			stats.UnsignedEdges++
		case Negative:
			stats.NegativeEdges++
		}
	}
	return stats
}
