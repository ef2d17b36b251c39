// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hotbin repairs isolated outlying phase bins inside included
// series without zero-weighting the whole series.
package hotbin

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/stats"
)

// DefaultThreshold is the default hot-bin significance in robust sigma.
const DefaultThreshold = 2.0

// FillMode selects the replacement value for a hot bin.
type FillMode int

const (
	// FillMedian replaces hot bins with the median of the non-hot residual
	// bins of the same series. Deterministic.
	FillMedian FillMode = iota

	// FillNoise draws each replacement from a normal distribution matching
	// the series' robust centre and dispersion.
	FillNoise
)

func (f FillMode) String() string {
	switch f {
	case FillMedian:
		return "median"
	case FillNoise:
		return "noise"
	default:
		return "unknown"
	}
}

// ParseFillMode parses a configuration name. The empty string selects
// FillMedian.
func ParseFillMode(name string) (FillMode, error) {
	switch name {
	case "", "median":
		return FillMedian, nil
	case "noise":
		return FillNoise, nil
	default:
		return FillMedian, fmt.Errorf("unknown hot-bin fill mode %q", name)
	}
}

// Options configures Clean.
type Options struct {
	// Threshold is the significance above which a bin is hot. Must be
	// positive.
	Threshold float64

	// Fill selects the replacement strategy.
	Fill FillMode

	// Seed seeds the noise source for FillNoise. Equal seeds give equal
	// repairs.
	Seed uint64

	// Dispersion selects the per-series robust estimator.
	Dispersion stats.Estimator
}

// DefaultOptions returns Options with the default threshold and median
// fill.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Fill: FillMedian, Seed: 1}
}

// Result reports what Clean changed.
type Result struct {
	// Repaired counts replaced bins.
	Repaired int

	// SeriesTouched counts series with at least one replaced bin.
	SeriesTouched int
}

// Clean finds and replaces hot bins in every included series.
//
// Description:
//
//	For each (isub, ichan) series whose channel and sub-integration are
//	both included, the residual's median and robust dispersion are
//	computed. A bin is hot when |r - median| / dispersion exceeds
//	opts.Threshold. Each hot bin of data becomes data - residual + fill,
//	so the underlying profile contribution is kept and only the
//	interference is replaced. The residual is updated to fill so that it
//	stays consistent with data.
//
//	Series whose bins are all hot have no reference population and are
//	left alone. Excluded series are never read or written.
//
// Inputs:
//   - data: The cube to repair. Modified in place.
//   - residual: Profile-removed copy of data. Modified in place.
//   - m: Current weight mask.
//   - opts: Threshold and fill mode.
//
// Outputs:
//   - Result: Repair counts.
//   - error: Non-nil if options are invalid or shapes disagree.
//
// Thread Safety: Requires exclusive access to data and residual.
func Clean(data, residual *cube.Cube, m *cube.Mask, opts Options) (Result, error) {
	var res Result
	if opts.Threshold <= 0 || math.IsNaN(opts.Threshold) {
		return res, fmt.Errorf("hot-bin threshold must be positive, got %g", opts.Threshold)
	}
	d := data.Dims()
	if residual.Dims() != d || !m.Fits(d) {
		return res, fmt.Errorf("hot-bin shapes disagree: data %s, residual %s, mask %dx%d",
			d, residual.Dims(), m.NSub(), m.NChan())
	}

	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	hot := make([]bool, d.NBin)
	cold := make([]bool, d.NBin)

	for isub := 0; isub < d.NSub; isub++ {
		for ichan := 0; ichan < d.NChan; ichan++ {
			if !m.Included(isub, ichan) {
				continue
			}
			r := residual.Series(isub, ichan)
			n, err := mark(r, hot, opts)
			if err != nil {
				return res, fmt.Errorf("series (%d, %d): %w", isub, ichan, err)
			}
			if n == 0 || n == len(r) {
				continue
			}
			for i := range hot {
				cold[i] = !hot[i]
			}
			fill, err := filler(r, cold, opts, src)
			if err != nil {
				return res, fmt.Errorf("series (%d, %d): %w", isub, ichan, err)
			}

			s := data.Series(isub, ichan)
			for i := range s {
				if !hot[i] {
					continue
				}
				v := fill()
				s[i] = s[i] - r[i] + v
				r[i] = v
			}
			res.Repaired += n
			res.SeriesTouched++
		}
	}
	return res, nil
}

// mark fills hot and returns how many bins are hot.
func mark(r []float64, hot []bool, opts Options) (int, error) {
	centre, err := stats.Median(r, nil)
	if err != nil {
		return 0, err
	}
	sigma, err := stats.Dispersion(opts.Dispersion, r, nil)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, v := range r {
		hot[i] = math.Abs(stats.Normalize(v-centre, sigma)) > opts.Threshold
		if hot[i] {
			n++
		}
	}
	return n, nil
}

// filler returns a generator of replacement values for one series.
func filler(r []float64, cold []bool, opts Options, src rand.Source) (func() float64, error) {
	centre, err := stats.Median(r, cold)
	if err != nil {
		return nil, err
	}
	if opts.Fill != FillNoise {
		return func() float64 { return centre }, nil
	}
	sigma, err := stats.Dispersion(opts.Dispersion, r, cold)
	if err != nil {
		return nil, err
	}
	if sigma <= 0 {
		return func() float64 { return centre }, nil
	}
	dist := distuv.Normal{Mu: centre, Sigma: sigma, Src: src}
	return dist.Rand, nil
}
