// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clean

import (
	"math"

	"github.com/AleutianAI/rficlean/services/clean/hotbin"
	"github.com/AleutianAI/rficlean/services/clean/score"
	"github.com/AleutianAI/rficlean/services/clean/stats"
)

// Default thresholds, in robust standard deviations.
const (
	DefaultChanThresh   = 5.0
	DefaultSubintThresh = 5.0
	DefaultBinThresh    = hotbin.DefaultThreshold
	DefaultThreshold    = 2.0
)

// Params carries every tunable of a cleaning run. It is passed explicitly
// to Run; nothing is read from package state.
type Params struct {
	// ChanThresh is the single-pass channel threshold.
	ChanThresh float64

	// SubintThresh is the single-pass sub-integration threshold.
	SubintThresh float64

	// BinThresh is the hot-bin threshold used by the single-pass sweep.
	BinThresh float64

	// Threshold is the iterative stopping threshold.
	Threshold float64

	// Dispersion is "mad" or "clipped".
	Dispersion string

	// DetrendWindow, when positive, detrends score vectors with a running
	// median of this width.
	DetrendWindow int

	// HotBinFill is "median" or "noise".
	HotBinFill string

	// Seed seeds noise fill.
	Seed uint64

	// MaxRounds caps the iterative loop. Zero means nchan + nsub, which the
	// loop can never exceed anyway.
	MaxRounds int
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		ChanThresh:   DefaultChanThresh,
		SubintThresh: DefaultSubintThresh,
		BinThresh:    DefaultBinThresh,
		Threshold:    DefaultThreshold,
		Dispersion:   stats.EstimatorMAD.String(),
		HotBinFill:   hotbin.FillMedian.String(),
		Seed:         1,
	}
}

// Validate checks every parameter range.
//
// Outputs:
//   - error: *ConfigurationError naming the first invalid field, or nil.
func (p Params) Validate() error {
	for _, th := range []struct {
		field string
		value float64
	}{
		{"chanthresh", p.ChanThresh},
		{"subintthresh", p.SubintThresh},
		{"binthresh", p.BinThresh},
		{"threshold", p.Threshold},
	} {
		if !(th.value > 0) || math.IsInf(th.value, 0) {
			return &ConfigurationError{Field: th.field, Value: th.value, Reason: "must be a positive finite number"}
		}
	}
	if p.DetrendWindow < 0 {
		return &ConfigurationError{Field: "detrend_window", Value: p.DetrendWindow, Reason: "must not be negative"}
	}
	if p.MaxRounds < 0 {
		return &ConfigurationError{Field: "max_rounds", Value: p.MaxRounds, Reason: "must not be negative"}
	}
	if _, err := stats.ParseEstimator(p.Dispersion); err != nil {
		return &ConfigurationError{Field: "dispersion", Value: p.Dispersion, Reason: "must be mad or clipped"}
	}
	if _, err := hotbin.ParseFillMode(p.HotBinFill); err != nil {
		return &ConfigurationError{Field: "hotbin_fill", Value: p.HotBinFill, Reason: "must be median or noise"}
	}
	return nil
}

// scoreOptions converts validated params into scorer options.
func (p Params) scoreOptions() score.Options {
	est, _ := stats.ParseEstimator(p.Dispersion)
	return score.Options{Dispersion: est, DetrendWindow: p.DetrendWindow}
}

// hotbinOptions converts validated params into hot-bin options.
func (p Params) hotbinOptions() hotbin.Options {
	est, _ := stats.ParseEstimator(p.Dispersion)
	fill, _ := hotbin.ParseFillMode(p.HotBinFill)
	return hotbin.Options{Threshold: p.BinThresh, Fill: fill, Seed: p.Seed, Dispersion: est}
}
