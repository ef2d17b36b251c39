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

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Clone returns an independent copy of the archive: data, mask and
// metadata.
func (f *File) Clone() Archive {
	data := make([]float64, len(f.data))
	copy(data, f.data)
	return &File{
		name: f.name,
		meta: f.meta,
		npol: f.npol,
		dims: f.dims,
		mask: f.mask.Clone(),
		data: data,
	}
}

// Merge carries the outcome of cleaning a preprocessed copy back onto f.
//
// Description:
//
//	work is a Clone of f that was scrunched, baselined and possibly
//	dedispersed, then cleaned. Every exclusion in work's mask is applied
//	to f's mask. When before is non-nil it is work's total-intensity cube
//	as it was ahead of cleaning, and the difference to work's current
//	cube (the hot-bin repairs) is added to f's data: rotated back when
//	only work was dedispersed, split evenly over the two summed products
//	of PPQQ and Coherence data, and added to I for Stokes data. Bins
//	cleaning left alone are unchanged, so f keeps its polarisation
//	products, baseline and flags.
//
// Inputs:
//   - work: The cleaned copy. Must have f's dimensions and total intensity.
//   - before: work's cube ahead of cleaning, or nil to merge only the mask.
//
// Outputs:
//   - error: Non-nil on a shape mismatch or an unscrunched work archive.
func (f *File) Merge(work Archive, before *cube.Cube) error {
	if work.Dims() != f.dims {
		return fmt.Errorf("%s: merge %s into %s: %w", f.name, work.Dims(), f.dims, ErrCorrupt)
	}
	wm := work.Mask()
	for _, ichan := range wm.ExcludedChannels() {
		if err := f.mask.ExcludeChannel(ichan); err != nil {
			return err
		}
	}
	for _, isub := range wm.ExcludedSubints() {
		if err := f.mask.ExcludeSubint(isub); err != nil {
			return err
		}
	}
	if before == nil {
		return nil
	}

	after, err := work.Cube()
	if err != nil {
		return err
	}
	if before.Dims() != f.dims {
		return fmt.Errorf("%s: merge repairs of %s into %s: %w", f.name, before.Dims(), f.dims, ErrCorrupt)
	}
	delta := after.Clone()
	floats.Sub(delta.Data(), before.Data())

	if work.Metadata().Dedispersed && !f.meta.Dedispersed && f.meta.DM != 0 {
		shifts := f.dispersionShifts()
		buf := make([]float64, f.dims.NBin)
		for isub := 0; isub < f.dims.NSub; isub++ {
			for ichan, shift := range shifts {
				if shift != 0 {
					rotate(delta.Series(isub, ichan), f.dims.NBin-shift, buf)
				}
			}
		}
	}

	switch {
	case f.npol == 1, f.meta.PolState == PolStokes:
		floats.Add(f.pol(0).Data(), delta.Data())
	case f.meta.PolState == PolPPQQ, f.meta.PolState == PolCoherence:
		floats.Scale(0.5, delta.Data())
		floats.Add(f.pol(0).Data(), delta.Data())
		floats.Add(f.pol(1).Data(), delta.Data())
	default:
		return fmt.Errorf("%s: cannot merge repairs into polarisation state %q", f.name, f.meta.PolState)
	}
	return nil
}
