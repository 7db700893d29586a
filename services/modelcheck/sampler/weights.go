// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

// defaultAbundance is used for rules without an object and objects without a
// declared initial amount.
const defaultAbundance = 1.0

// assignWeights sets the weight of every edge of c.
//
// For each vertex, an edge into rule v weighs abundance(object(v)) divided
// by the sum of abundances over the distinct objects in the vertex's
// out-neighbourhood, divided by how many of those edges share v's object.
// Rules without an object share one entry in the sum and are never divided
// by a sibling count.
func assignWeights(c *Combined, objects map[string]string, amounts map[string]float64) {
	for from, next := range c.succ {
		abundance := make([]float64, len(next))
		byObject := make(map[string]float64)
		count := make(map[string]int)

		for i, v := range next {
			obj := objects[v.Node]
			ic := defaultAbundance
			if obj != "" {
				if a, ok := amounts[obj]; ok {
					ic = a
				}
				count[obj]++
			}
			abundance[i] = ic
			byObject[obj] = ic
		}

		var sum float64
		for _, ic := range byObject {
			sum += ic
		}

		w := make([]float64, len(next))
		for i, v := range next {
			if sum <= 0 {
				w[i] = 0
				continue
			}
			siblings := 1
			if obj := objects[v.Node]; obj != "" {
				siblings = count[obj]
			}
			w[i] = abundance[i] / sum / float64(siblings)
		}
		c.weights[from] = w
	}
}

// pickWeighted returns an index drawn proportionally to weights using r,
// a uniform value in [0, 1). If every weight is zero or negative the draw
// is uniform.
func pickWeighted(weights []float64, r float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		i := int(r * float64(len(weights)))
		return min(i, len(weights)-1)
	}

	target := r * total
	var acc float64
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if target < acc {
			return i
		}
	}
	return last
}
