// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package score reduces a residual cube to one significance per channel or
// per sub-integration.
//
// Scores are expressed in robust standard deviations from the typical
// slice, so they compare directly against a user threshold. Only series
// whose channel and sub-integration are both included contribute.
package score

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/stats"
)

// =============================================================================
// Axis and Statistic
// =============================================================================

// Axis selects which slices receive a score.
type Axis int

const (
	// AxisChannel scores each frequency channel, averaging over
	// sub-integrations.
	AxisChannel Axis = iota

	// AxisSubint scores each sub-integration, averaging over channels.
	AxisSubint
)

func (a Axis) String() string {
	switch a {
	case AxisChannel:
		return "channel"
	case AxisSubint:
		return "subint"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Statistic selects the per-series reduction over phase bins.
type Statistic int

const (
	// StatMean detects systematic offsets.
	StatMean Statistic = iota

	// StatStd detects excess variance.
	StatStd
)

func (s Statistic) String() string {
	switch s {
	case StatMean:
		return "mean"
	case StatStd:
		return "std"
	default:
		return fmt.Sprintf("statistic(%d)", int(s))
	}
}

// Options tunes normalisation.
type Options struct {
	// Dispersion selects the robust estimator used as the unit of the
	// score.
	Dispersion stats.Estimator

	// DetrendWindow, when positive, subtracts a running median over that
	// many neighbouring slices instead of the global median. This follows
	// smooth bandpass-like trends across the axis.
	DetrendWindow int
}

// =============================================================================
// Vector
// =============================================================================

// Vector holds one score per slice along an axis.
type Vector struct {
	Axis      Axis
	Statistic Statistic

	// Raw is the reduced statistic before normalisation.
	Raw []float64

	// Values holds the normalised score. Excluded slices hold 0.
	Values []float64

	// Included is false for slices that were excluded when scored.
	Included []bool
}

// Len returns the number of slices.
func (v *Vector) Len() int { return len(v.Values) }

// Exceeding returns the included slices whose score is strictly greater
// than thr, in ascending index order. A score equal to thr is not
// returned.
func (v *Vector) Exceeding(thr float64) []int {
	out := []int{}
	for i, s := range v.Values {
		if v.Included[i] && s > thr {
			out = append(out, i)
		}
	}
	return out
}

// Worst returns the included slice with the highest score. Ties resolve to
// the lowest index. ok is false when no slice is included.
func (v *Vector) Worst() (index int, score float64, ok bool) {
	index = -1
	for i, s := range v.Values {
		if !v.Included[i] {
			continue
		}
		if !ok || s > score {
			index, score, ok = i, s, true
		}
	}
	return index, score, ok
}

// =============================================================================
// Scoring
// =============================================================================

// Score reduces the residual along the bin axis and then across the
// complementary slice axis, and normalises the result.
//
// Description:
//
//	For every included (isub, ichan) series the mean or population
//	standard deviation over bins is computed. Each slice along axis then
//	takes the average of that value over its included cross slices.
//	Finally the median (or running median) of the included slice values is
//	subtracted and the result divided by the robust dispersion of the
//	detrended values. Scores are one-sided: large positive values mark
//	suspect slices.
//
// Inputs:
//   - residual: Profile-removed cube.
//   - m: Current weight mask. Must fit residual.
//   - axis: Which slices to score.
//   - statistic: Per-series reduction.
//   - opts: Normalisation options.
//
// Outputs:
//   - *Vector: Scores for every slice along axis.
//   - error: Wraps stats.ErrInsufficientData when no slice along axis, or
//     no cross slice, is included.
//
// Thread Safety: Reads residual and m only.
func Score(residual *cube.Cube, m *cube.Mask, axis Axis, statistic Statistic, opts Options) (*Vector, error) {
	d := residual.Dims()
	if !m.Fits(d) {
		return nil, fmt.Errorf("mask %dx%d does not fit cube %s", m.NSub(), m.NChan(), d)
	}

	n, ncross := d.NChan, d.NSub
	if axis == AxisSubint {
		n, ncross = d.NSub, d.NChan
	}

	v := &Vector{
		Axis:      axis,
		Statistic: statistic,
		Raw:       make([]float64, n),
		Values:    make([]float64, n),
		Included:  make([]bool, n),
	}

	anyIncluded := false
	for i := 0; i < n; i++ {
		var sum float64
		var count int
		for j := 0; j < ncross; j++ {
			isub, ichan := j, i
			if axis == AxisSubint {
				isub, ichan = i, j
			}
			if !m.Included(isub, ichan) {
				continue
			}
			sum += reduce(residual.Series(isub, ichan), statistic)
			count++
		}
		if count == 0 {
			continue
		}
		v.Raw[i] = sum / float64(count)
		v.Included[i] = true
		anyIncluded = true
	}
	if !anyIncluded {
		return nil, fmt.Errorf("score %s %s: %w", axis, statistic, stats.ErrInsufficientData)
	}

	if err := v.normalise(opts); err != nil {
		return nil, fmt.Errorf("score %s %s: %w", axis, statistic, err)
	}
	return v, nil
}

func reduce(series []float64, statistic Statistic) float64 {
	mean, std := stat.PopMeanStdDev(series, nil)
	if statistic == StatStd {
		return std
	}
	return mean
}

func (v *Vector) normalise(opts Options) error {
	trend, err := stats.RunningMedian(v.Raw, v.Included, opts.DetrendWindow)
	if err != nil {
		return err
	}
	detrended := make([]float64, len(v.Raw))
	for i := range v.Raw {
		detrended[i] = v.Raw[i] - trend[i]
	}
	disp, err := stats.Dispersion(opts.Dispersion, detrended, v.Included)
	if err != nil {
		return err
	}
	for i := range detrended {
		if v.Included[i] {
			v.Values[i] = stats.Normalize(detrended[i], disp)
		}
	}
	return nil
}
