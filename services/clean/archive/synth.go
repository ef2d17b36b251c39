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
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// SynthOptions describes a synthetic observation.
type SynthOptions struct {
	Dims cube.Dims
	Meta Metadata

	// Seed makes the output reproducible.
	Seed uint64

	// Noise is the per-sample gaussian sigma. Zero means 1.
	Noise float64

	// Offset is a constant baseline added to every sample.
	Offset float64

	// PulseAmp is the peak pulse height; zero omits the pulse.
	PulseAmp float64

	// PulsePhase is the pulse centre in turns at the centre frequency.
	PulsePhase float64

	// PulseWidth is the gaussian sigma in bins. Zero means nbin/64, at
	// least one bin.
	PulseWidth float64

	// BadChannels get their noise multiplied by BadGain.
	BadChannels []int

	// BadSubints get their noise multiplied by BadGain.
	BadSubints []int

	// BadGain defaults to sqrt(10), ten times the variance.
	BadGain float64

	// Spikes single-bin spikes of height SpikeAmp are scattered at random.
	Spikes   int
	SpikeAmp float64
}

// Synthesize builds an in-memory archive from opts.
//
// When the metadata carries a DM and period and is not marked dedispersed,
// the pulse is delayed per channel so that Dedisperse realigns it.
func Synthesize(name string, opts SynthOptions) (*File, error) {
	d := opts.Dims
	if err := d.Validate(); err != nil {
		return nil, err
	}
	meta := opts.Meta
	if meta.PolState == "" {
		meta.PolState = PolIntensity
	}
	npol, err := polProducts(meta.PolState)
	if err != nil {
		return nil, err
	}
	if meta.PolState == PolStokes {
		return nil, fmt.Errorf("synthesizing %s data is not supported", PolStokes)
	}

	noise := opts.Noise
	if noise == 0 {
		noise = 1
	}
	gain := opts.BadGain
	if gain == 0 {
		gain = math.Sqrt(10)
	}
	width := opts.PulseWidth
	if width == 0 {
		width = math.Max(1, float64(d.NBin)/64)
	}

	f, err := NewFile(name, meta, d, make([]float64, npol*d.Size()))
	if err != nil {
		return nil, err
	}

	shifts := make([]int, d.NChan)
	if meta.DM != 0 && meta.Period > 0 && !meta.Dedispersed {
		shifts = f.dispersionShifts()
	}

	badChan := indexSet(opts.BadChannels)
	badSub := indexSet(opts.BadSubints)
	src := rand.NewPCG(opts.Seed, opts.Seed+1)
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	// The two polarisations of PPQQ data split the pulse and offset.
	share := 1 / float64(min(npol, 2))
	for ipol := 0; ipol < npol; ipol++ {
		c := f.pol(ipol)
		signal := share
		if ipol >= 2 {
			signal = 0
		}
		for isub := 0; isub < d.NSub; isub++ {
			for ichan := 0; ichan < d.NChan; ichan++ {
				sigma := noise
				if badChan[ichan] || badSub[isub] {
					sigma *= gain
				}
				centre := opts.PulsePhase*float64(d.NBin) + float64(shifts[ichan])
				s := c.Series(isub, ichan)
				for ibin := range s {
					v := signal*opts.Offset + sigma*dist.Rand()
					if opts.PulseAmp != 0 {
						v += signal * opts.PulseAmp * wrappedGaussian(float64(ibin), centre, width, d.NBin)
					}
					s[ibin] = v
				}
			}
		}
	}

	rng := rand.New(src)
	total := f.pol(0)
	for i := 0; i < opts.Spikes; i++ {
		isub, ichan, ibin := rng.IntN(d.NSub), rng.IntN(d.NChan), rng.IntN(d.NBin)
		total.Set(isub, ichan, ibin, total.At(isub, ichan, ibin)+opts.SpikeAmp)
	}
	return f, nil
}

// wrappedGaussian evaluates a unit-height gaussian on a periodic phase
// axis of n bins.
func wrappedGaussian(x, centre, sigma float64, n int) float64 {
	dx := math.Mod(x-centre, float64(n))
	if dx > float64(n)/2 {
		dx -= float64(n)
	} else if dx < -float64(n)/2 {
		dx += float64(n)
	}
	return math.Exp(-0.5 * dx * dx / (sigma * sigma))
}

func indexSet(idx []int) map[int]bool {
	set := make(map[int]bool, len(idx))
	for _, i := range idx {
		set[i] = true
	}
	return set
}
