// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import "math"

// tailCutoff is where logPhi switches to the asymptotic expansion. Below it
// erfc loses all precision before underflowing near z = -37.5.
const tailCutoff = -30.0

// logPhi returns log(Phi(z)) for the standard normal CDF Phi.
//
// For z > 0, Phi(z) = 1 - Q(z) with Q tiny, so log1p keeps the result
// accurate down to ~1e-300 instead of rounding to 0.
func logPhi(z float64) float64 {
	switch {
	case math.IsNaN(z):
		return math.NaN()
	case z > 0:
		return math.Log1p(-0.5 * math.Erfc(z/math.Sqrt2))
	case z < tailCutoff:
		z2 := z * z
		series := 1 - 1/z2 + 3/(z2*z2) - 15/(z2*z2*z2)
		return -z2/2 - math.Log(-z) - 0.5*math.Log(2*math.Pi) + math.Log(series)
	default:
		return math.Log(0.5 * math.Erfc(-z/math.Sqrt2))
	}
}

// normLogCDF returns log P(X <= x) for X ~ N(mean, sigma).
func normLogCDF(x, mean, sigma float64) float64 {
	return logPhi((x - mean) / sigma)
}

// normLogSF returns log P(X > x) for X ~ N(mean, sigma).
func normLogSF(x, mean, sigma float64) float64 {
	return logPhi((mean - x) / sigma)
}
