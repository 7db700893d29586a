// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checker

import (
	"fmt"

	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

// QueryKind names the type of relationship a query asserts.
type QueryKind string

const (
	// KindAddModification asserts the subject adds a modification to the
	// object. The subject may be empty, meaning any upstream rule.
	KindAddModification QueryKind = "add_modification"

	// KindRemoveModification asserts the subject removes a modification.
	KindRemoveModification QueryKind = "remove_modification"

	// KindActivation asserts the subject increases the object's activity.
	KindActivation QueryKind = "activation"

	// KindInhibition asserts the subject decreases the object's activity.
	KindInhibition QueryKind = "inhibition"

	// KindIncreaseAmount asserts the subject increases the object's amount.
	KindIncreaseAmount QueryKind = "increase_amount"

	// KindDecreaseAmount asserts the subject decreases the object's amount.
	KindDecreaseAmount QueryKind = "decrease_amount"
)

// Query is one relationship to check against the model.
type Query struct {
	// ID identifies the query in output. Optional.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Kind selects the handler.
	Kind QueryKind `json:"kind" yaml:"kind"`

	// Subject is the causal agent.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	// Object is the condition whose readouts are the search targets.
	Object string `json:"object" yaml:"object"`

	// MaxPaths overrides the checker default when non-nil.
	MaxPaths *int `json:"max_paths,omitempty" yaml:"max_paths,omitempty"`

	// MaxPathLength overrides the checker default when non-nil.
	MaxPathLength *int `json:"max_path_length,omitempty" yaml:"max_path_length,omitempty"`
}

// String renders the query as "activation(RAF, act(ERK))".
func (q Query) String() string {
	subj := q.Subject
	if subj == "" {
		subj = "*"
	}
	return fmt.Sprintf("%s(%s, %s)", q.Kind, subj, q.Object)
}

// Outcome pairs a query with its verdict.
type Outcome struct {
	Query  Query              `json:"query" yaml:"query"`
	Result *result.PathResult `json:"result" yaml:"result"`
}
