// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/rficlean/services/clean/profile"
)

// DispersionConstant is the cold-plasma dispersion constant in
// s MHz^2 cm^3 pc^-1.
const DispersionConstant = 4.148808e3

// BaselineDutyCycle is the fraction of phase bins treated as off-pulse.
const BaselineDutyCycle = 0.15

// PScrunch reduces the data to total intensity.
//
// PPQQ and Coherence data sum the first two products (AA + BB); Stokes
// data keep I. Intensity data are left unchanged.
func (f *File) PScrunch() error {
	if f.npol == 1 {
		return nil
	}
	n := f.dims.Size()
	total := make([]float64, n)
	switch f.meta.PolState {
	case PolPPQQ, PolCoherence:
		copy(total, f.data[:n])
		floats.Add(total, f.data[n:2*n])
	case PolStokes:
		copy(total, f.data[:n])
	default:
		return fmt.Errorf("%s: cannot pscrunch polarisation state %q", f.name, f.meta.PolState)
	}
	f.data = total
	f.npol = 1
	f.meta.PolState = PolIntensity
	return nil
}

// RemoveBaseline subtracts the off-pulse level from every series of every
// polarisation.
//
// Description:
//
//	The off-pulse window is the contiguous, phase-wrapping run of
//	BaselineDutyCycle*nbin bins with the lowest mean in the summed
//	profile of the included total-intensity series. Each series then has
//	its own mean over that window subtracted. Running it twice leaves the
//	data unchanged apart from rounding.
func (f *File) RemoveBaseline() error {
	// For Stokes data only I carries a baseline; Q, U and V are
	// differences.
	npol := f.npol
	total := f.pol(0)
	if f.meta.PolState == PolStokes {
		npol = 1
	} else if f.npol > 1 {
		total = total.Clone()
		floats.Add(total.Data(), f.pol(1).Data())
	}
	prof := profile.Estimate(total, f.mask)
	start, width := offPulseWindow(prof)

	nbin := f.dims.NBin
	for ipol := 0; ipol < npol; ipol++ {
		c := f.pol(ipol)
		for isub := 0; isub < f.dims.NSub; isub++ {
			for ichan := 0; ichan < f.dims.NChan; ichan++ {
				s := c.Series(isub, ichan)
				var sum float64
				for k := 0; k < width; k++ {
					sum += s[(start+k)%nbin]
				}
				floats.AddConst(-sum/float64(width), s)
			}
		}
	}
	f.meta.BaselineRemoved = true
	return nil
}

// offPulseWindow returns the start and width of the minimum-mean window.
func offPulseWindow(prof []float64) (start, width int) {
	n := len(prof)
	width = max(1, int(math.Round(BaselineDutyCycle*float64(n))))

	var sum float64
	for k := 0; k < width; k++ {
		sum += prof[k]
	}
	best := sum
	for i := 1; i < n; i++ {
		sum += prof[(i+width-1)%n] - prof[i-1]
		if sum < best {
			best, start = sum, i
		}
	}
	return start, width
}

// DispersionDelay returns the arrival delay in seconds at freq relative to
// ref, both in MHz.
func DispersionDelay(dm, freq, ref float64) float64 {
	return DispersionConstant * dm * (1/(freq*freq) - 1/(ref*ref))
}

// Dedisperse rotates each channel so the pulse aligns with the centre
// frequency.
//
// Description:
//
//	The delay at each channel frequency relative to the centre frequency
//	is converted to a whole number of phase bins and every series in that
//	channel is rotated earlier by that amount. Already dedispersed data and
//	data with zero DM are only marked.
func (f *File) Dedisperse() error {
	if f.meta.Dedispersed {
		return nil
	}
	if f.meta.DM != 0 {
		if !(f.meta.Period > 0) {
			return fmt.Errorf("%s: dedispersion needs a positive period, got %g", f.name, f.meta.Period)
		}
		shifts := f.dispersionShifts()
		buf := make([]float64, f.dims.NBin)
		for ipol := 0; ipol < f.npol; ipol++ {
			c := f.pol(ipol)
			for isub := 0; isub < f.dims.NSub; isub++ {
				for ichan, shift := range shifts {
					rotate(c.Series(isub, ichan), shift, buf)
				}
			}
		}
	}
	f.meta.Dedispersed = true
	return nil
}

// dispersionShifts returns, per channel, the delay in whole bins.
func (f *File) dispersionShifts() []int {
	nbin := f.dims.NBin
	freqs := f.ChannelFrequencies()
	shifts := make([]int, len(freqs))
	for i, freq := range freqs {
		delay := DispersionDelay(f.meta.DM, freq, f.meta.CentreFreq)
		bins := int(math.Round(delay / f.meta.Period * float64(nbin)))
		shifts[i] = ((bins % nbin) + nbin) % nbin
	}
	return shifts
}

// rotate moves s left by shift bins in place: s[i] = s[i+shift].
func rotate(s []float64, shift int, buf []float64) {
	if shift == 0 {
		return
	}
	n := len(s)
	for i := range s {
		buf[i] = s[(i+shift)%n]
	}
	copy(s, buf[:n])
}
