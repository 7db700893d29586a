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
	"strings"
)

// Step is one position of a path: a rule and the cumulative polarity of the
// path from its first step up to this rule.
type Step struct {
	Node     string `json:"node" yaml:"node"`
	Polarity Sign   `json:"polarity" yaml:"polarity"`
}

// Path is an ordered walk through the influence graph.
//
// Polarity at index i is the product of edge signs from index 0 to i, so the
// first step of a forward path always has Polarity Positive.
type Path []Step

// Sign returns the polarity of the last step, which equals the product of
// the path's edge signs. An empty path has sign Unsigned.
func (p Path) Sign() Sign {
	if len(p) == 0 {
		return Unsigned
	}
	return p[len(p)-1].Polarity
}

// Len returns the number of edges in the path.
func (p Path) Len() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Nodes returns the rule IDs of the path in order.
func (p Path) Nodes() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Node
	}
	return out
}

// Contains reports whether the path already visits node with polarity.
func (p Path) Contains(node string, polarity Sign) bool {
	for _, s := range p {
		if s.Node == node && s.Polarity == polarity {
			return true
		}
	}
	return false
}

// String renders the path as "A(+) -> B(+) -> C(-)".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(s.Node)
		b.WriteByte('(')
		b.WriteString(s.Polarity.String())
		b.WriteByte(')')
	}
	return b.String()
}
