// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats provides outlier-resistant statistics over weighted samples.
//
// Every function takes a sample slice and a parallel boolean weight slice.
// A weight of true includes the sample; false excludes it. A nil weight
// slice includes every sample. Excluded samples never contribute to any
// result, including denominators.
package stats

import (
	"errors"
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientData indicates a statistic was requested over a sample
	// with zero included elements.
	ErrInsufficientData = errors.New("insufficient data: no included samples")

	// ErrLengthMismatch indicates samples and weights differ in length.
	ErrLengthMismatch = errors.New("samples and weights differ in length")
)

// MADScale converts a median absolute deviation into a Gaussian-consistent
// standard deviation estimate.
const MADScale = 1.4826

// -----------------------------------------------------------------------------
// Estimators
// -----------------------------------------------------------------------------

// Estimator selects the dispersion estimator used for normalisation.
type Estimator int

const (
	// EstimatorMAD scales the median absolute deviation (default).
	EstimatorMAD Estimator = iota

	// EstimatorClipped is an iteratively sigma-clipped standard deviation.
	EstimatorClipped
)

// String returns the configuration name of the estimator.
func (e Estimator) String() string {
	switch e {
	case EstimatorMAD:
		return "mad"
	case EstimatorClipped:
		return "clipped"
	default:
		return "unknown"
	}
}

// ParseEstimator parses a configuration name into an Estimator.
func ParseEstimator(name string) (Estimator, error) {
	switch name {
	case "", "mad":
		return EstimatorMAD, nil
	case "clipped":
		return EstimatorClipped, nil
	default:
		return EstimatorMAD, fmt.Errorf("unknown dispersion estimator %q", name)
	}
}

// Default parameters for ClippedStd when used through Dispersion.
const (
	DefaultClipSigma   = 3.0
	DefaultClipMaxIter = 10
)

// Included returns the samples whose weight is true, in order.
//
// Outputs:
//   - []float64: A new slice. Never aliases samples.
//   - error: ErrLengthMismatch if weights is non-nil and differs in length.
func Included(samples []float64, weights []bool) ([]float64, error) {
	if weights == nil {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out, nil
	}
	if len(weights) != len(samples) {
		return nil, fmt.Errorf("%w: %d samples, %d weights", ErrLengthMismatch, len(samples), len(weights))
	}
	out := make([]float64, 0, len(samples))
	for i, w := range weights {
		if w {
			out = append(out, samples[i])
		}
	}
	return out, nil
}

// Median returns the median of the included samples.
func Median(samples []float64, weights []bool) (float64, error) {
	kept, err := Included(samples, weights)
	if err != nil {
		return 0, err
	}
	if len(kept) == 0 {
		return 0, ErrInsufficientData
	}
	return mstats.Median(kept)
}

// RobustStd estimates the standard deviation of the included samples from
// their median absolute deviation.
//
// Description:
//
//	Returns MADScale * median(|x - median(x)|). A handful of strongly
//	corrupted samples moves the estimate by at most one rank, so one bad
//	channel cannot inflate the yardstick used to judge the others.
//
// Inputs:
//   - samples: The sample values.
//   - weights: Inclusion flags parallel to samples. Nil includes all.
//
// Outputs:
//   - float64: The robust standard deviation. Zero when more than half of
//     the included samples are identical.
//   - error: ErrInsufficientData when no sample is included.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func RobustStd(samples []float64, weights []bool) (float64, error) {
	kept, err := Included(samples, weights)
	if err != nil {
		return 0, err
	}
	if len(kept) == 0 {
		return 0, ErrInsufficientData
	}
	mad, err := mstats.MedianAbsoluteDeviationPopulation(kept)
	if err != nil {
		return 0, fmt.Errorf("median absolute deviation: %w", err)
	}
	return MADScale * mad, nil
}

// ClippedStd estimates the standard deviation of the included samples by
// iterative sigma clipping.
//
// Description:
//
//	Starting from every included sample, computes the mean and population
//	standard deviation, drops samples further than nsigma standard
//	deviations from the mean, and repeats until nothing is dropped or
//	maxIter rounds have run.
//
// Inputs:
//   - samples, weights: As for RobustStd.
//   - nsigma: Clip radius in standard deviations. Must be positive.
//   - maxIter: Maximum clipping rounds. Must be positive.
//
// Outputs:
//   - float64: Standard deviation of the surviving samples.
//   - error: ErrInsufficientData when no sample is included.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func ClippedStd(samples []float64, weights []bool, nsigma float64, maxIter int) (float64, error) {
	if nsigma <= 0 || maxIter <= 0 {
		return 0, fmt.Errorf("clipping requires positive nsigma and maxIter, got %g and %d", nsigma, maxIter)
	}
	kept, err := Included(samples, weights)
	if err != nil {
		return 0, err
	}
	if len(kept) == 0 {
		return 0, ErrInsufficientData
	}

	mean, std := stat.PopMeanStdDev(kept, nil)
	for iter := 0; iter < maxIter && std > 0; iter++ {
		survivors := kept[:0:0]
		for _, v := range kept {
			if math.Abs(v-mean) <= nsigma*std {
				survivors = append(survivors, v)
			}
		}
		if len(survivors) == len(kept) || len(survivors) == 0 {
			break
		}
		kept = survivors
		mean, std = stat.PopMeanStdDev(kept, nil)
	}
	return std, nil
}

// Dispersion computes the included samples' dispersion with the chosen
// estimator.
func Dispersion(est Estimator, samples []float64, weights []bool) (float64, error) {
	switch est {
	case EstimatorClipped:
		return ClippedStd(samples, weights, DefaultClipSigma, DefaultClipMaxIter)
	default:
		return RobustStd(samples, weights)
	}
}

// Normalize expresses a deviation in units of dispersion.
//
// A zero dispersion means more than half of the reference samples agree
// exactly. Deviations of zero then score 0 and any other deviation scores
// ±Inf, so it always exceeds a finite threshold.
func Normalize(deviation, dispersion float64) float64 {
	if dispersion > 0 {
		return deviation / dispersion
	}
	switch {
	case deviation > 0:
		return math.Inf(1)
	case deviation < 0:
		return math.Inf(-1)
	default:
		return 0
	}
}
