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
	"log/slog"
	"slices"
	"strings"
)

// ConflictPolicy decides how EdgeSign resolves parallel edges whose signs
// disagree.
type ConflictPolicy int

const (
	// ConflictPreferPositive logs a warning and resolves to Positive.
	ConflictPreferPositive ConflictPolicy = iota

	// ConflictReject returns ErrConflictingSigns.
	ConflictReject
)

// String returns the config name of the policy.
func (p ConflictPolicy) String() string {
	switch p {
	case ConflictPreferPositive:
		return "prefer_positive"
	case ConflictReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseConflictPolicy parses a config value into a ConflictPolicy.
// The empty string selects ConflictPreferPositive.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prefer_positive":
		return ConflictPreferPositive, nil
	case "reject":
		return ConflictReject, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// EdgeSigns returns the distinct declared signs over the parallel edges
// from -> to, in the order they first appear. Unsigned edges are skipped, so
// a conflicting pair returns both Positive and Negative.
func (g *Graph) EdgeSigns(from, to string) []Sign {
	node, ok := g.nodes[from]
	if !ok {
		return nil
	}
	var signs []Sign
	for _, e := range node.Outgoing {
		if e.ToID != to || e.Sign == Unsigned || slices.Contains(signs, e.Sign) {
			continue
		}
		signs = append(signs, e.Sign)
	}
	return signs
}

// EdgeSign resolves the single sign of the influence from -> to.
//
// Description:
//
//	Collects the distinct non-Unsigned signs over all parallel edges. One
//	distinct sign is returned as-is. When both signs occur the graph's
//	ConflictPolicy applies: the default logs a warning (once per pair)
//	and returns Positive.
//
// Outputs:
//
//	Sign - Positive or Negative.
//	error - Non-nil when the sign cannot be resolved.
//
// Errors:
//
//	ErrEdgeNotFound - No edge from -> to exists
//	*MissingSignError - Every parallel edge is Unsigned
//	ErrConflictingSigns - Signs disagree and policy is ConflictReject
//
// Thread Safety: Safe for concurrent use after Freeze().
func (g *Graph) EdgeSign(from, to string) (Sign, error) {
	var hasPos, hasNeg, found bool
	if node, ok := g.nodes[from]; ok {
		for _, e := range node.Outgoing {
			if e.ToID != to {
				continue
			}
			found = true
			switch e.Sign {
			case Positive:
				hasPos = true
			case Negative:
				hasNeg = true
			}
		}
	}

	switch {
	case !found:
		return Unsigned, fmt.Errorf("%w: (%s, %s)", ErrEdgeNotFound, from, to)
	case hasPos && hasNeg:
		if g.options.ConflictPolicy == ConflictReject {
			return Unsigned, fmt.Errorf("%w: (%s, %s)", ErrConflictingSigns, from, to)
		}
		if _, loaded := g.warned.LoadOrStore(from+"\x00"+to, struct{}{}); !loaded {
			g.logger.Warn("conflicting edge signs, using positive",
				slog.String("from", from),
				slog.String("to", to),
			)
		}
		return Positive, nil
	case hasPos:
		return Positive, nil
	case hasNeg:
		return Negative, nil
	default:
		return Unsigned, &MissingSignError{From: from, To: to}
	}
}
