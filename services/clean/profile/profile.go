// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile estimates the common pulse profile of a cube and removes
// a scaled copy of it from every phase series.
package profile

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Result holds the output of one profile removal.
type Result struct {
	// Profile is the summed included phase series, length nbin.
	Profile []float64

	// Residual has Amplitudes[isub][ichan] * Profile subtracted from every
	// series. Excluded series are processed too so that callers can still
	// inspect them; nothing downstream reads them as statistics.
	Residual *cube.Cube

	// Amplitudes holds the fitted scale per (isub, ichan), row-major.
	Amplitudes []float64
}

// Amplitude returns the fitted amplitude of one series.
func (r *Result) Amplitude(isub, ichan int) float64 {
	return r.Amplitudes[isub*r.Residual.Dims().NChan+ichan]
}

// Estimate sums every included phase series into a profile.
//
// Description:
//
//	Only series whose sub-integration and channel are both included
//	contribute. When nothing is included the profile is all zeros rather
//	than an error; a zero profile makes every fitted amplitude zero and
//	leaves the residual equal to the data.
//
// Thread Safety: Reads c and m only.
func Estimate(c *cube.Cube, m *cube.Mask) []float64 {
	d := c.Dims()
	prof := make([]float64, d.NBin)
	for isub := 0; isub < d.NSub; isub++ {
		for ichan := 0; ichan < d.NChan; ichan++ {
			if !m.Included(isub, ichan) {
				continue
			}
			floats.Add(prof, c.Series(isub, ichan))
		}
	}
	return prof
}

// Fit returns the least-squares amplitude a minimising |series - a*prof|^2.
//
// The amplitude is zero when the profile has no power or the fit is not
// finite.
func Fit(series, prof []float64) float64 {
	pp := floats.Dot(prof, prof)
	if pp == 0 {
		return 0
	}
	a := floats.Dot(series, prof) / pp
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	return a
}

// Remove estimates the profile and subtracts a fitted copy of it from every
// series.
//
// Description:
//
//	The input cube is not modified. Re-estimating the profile from the
//	residual gives a profile of near-zero amplitude, since each residual
//	series is orthogonal to the profile it was fitted against.
//
// Inputs:
//   - c: The (baselined, dedispersed, total-intensity) data cube.
//   - m: The current weight mask. Must fit c.
//
// Outputs:
//   - *Result: Profile, residual cube and amplitudes.
//
// Thread Safety: Reads c and m only; the result is newly allocated.
func Remove(c *cube.Cube, m *cube.Mask) *Result {
	prof := Estimate(c, m)
	res := c.Clone()
	d := c.Dims()
	amps := make([]float64, d.NSub*d.NChan)

	for isub := 0; isub < d.NSub; isub++ {
		for ichan := 0; ichan < d.NChan; ichan++ {
			series := res.Series(isub, ichan)
			a := Fit(series, prof)
			amps[isub*d.NChan+ichan] = a
			if a != 0 {
				floats.AddScaled(series, -a, prof)
			}
		}
	}
	return &Result{Profile: prof, Residual: res, Amplitudes: amps}
}
