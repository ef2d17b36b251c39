// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cubetest builds deterministic cubes for tests.
//
// Patterned cubes use exactly representable values so that sums cancel
// without rounding: every series is sign(isub) * chanScale[ichan] *
// subScale[isub] * z[ibin], where z repeats 1, -1, 2, -2 and sign
// alternates between even and odd sub-integrations. When subScale comes in
// equal adjacent pairs the summed profile is exactly zero, every series
// mean is exactly zero, and each series standard deviation is proportional
// to chanScale[ichan] * subScale[isub].
package cubetest

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Pattern is the repeating zero-mean bin pattern.
var Pattern = [4]float64{1, -1, 2, -2}

// Patterned builds a cube from per-channel and per-sub-integration scales.
// nbin must be a positive multiple of len(Pattern).
func Patterned(chanScale, subScale []float64, nbin int) (*cube.Cube, error) {
	if nbin <= 0 || nbin%len(Pattern) != 0 {
		return nil, fmt.Errorf("nbin must be a positive multiple of %d, got %d", len(Pattern), nbin)
	}
	c, err := cube.New(cube.Dims{NSub: len(subScale), NChan: len(chanScale), NBin: nbin})
	if err != nil {
		return nil, err
	}
	for isub, b := range subScale {
		sign := 1.0
		if isub%2 == 1 {
			sign = -1
		}
		for ichan, a := range chanScale {
			s := c.Series(isub, ichan)
			for ibin := range s {
				s[ibin] = sign * a * b * Pattern[ibin%len(Pattern)]
			}
		}
	}
	return c, nil
}

// HotChannel is the channel with inflated variance in Standard.
const HotChannel = 3

// StandardChannelScales returns eight evenly spaced channel scales with
// channel HotChannel raised to 405/128, roughly ten times the variance of
// the others.
func StandardChannelScales() []float64 {
	return []float64{
		1, 1 + 1.0/64, 1 + 2.0/64, 405.0 / 128,
		1 + 3.0/64, 1 + 4.0/64, 1 + 5.0/64, 1 + 6.0/64,
	}
}

// StandardSubintScales returns ten sub-integration scales in equal
// adjacent pairs.
func StandardSubintScales() []float64 {
	return []float64{
		1, 1,
		1 + 1.0/64, 1 + 1.0/64,
		1 + 2.0/64, 1 + 2.0/64,
		1 + 3.0/64, 1 + 3.0/64,
		1 + 4.0/64, 1 + 4.0/64,
	}
}

// Standard returns a 10x8x16 cube whose only anomaly is excess variance in
// HotChannel.
//
// With every slice included, HotChannel scores about 45 robust sigma on
// the std statistic and every other channel under 1. Sub-integrations
// score at most about 1.35, and every mean score is exactly 0.
func Standard() *cube.Cube {
	c, err := Patterned(StandardChannelScales(), StandardSubintScales(), 16)
	if err != nil {
		panic(err)
	}
	return c
}

// UniformNoise returns an nsub x len(chanSigma) x nbin cube of zero-mean
// uniform noise. Channel i has standard deviation chanSigma[i]. Samples are
// drawn in [isub][ichan][ibin] order from a PCG source seeded with
// (seed, seed), so equal seeds give equal cubes.
func UniformNoise(nsub, nbin int, chanSigma []float64, seed uint64) (*cube.Cube, error) {
	c, err := cube.New(cube.Dims{NSub: nsub, NChan: len(chanSigma), NBin: nbin})
	if err != nil {
		return nil, err
	}
	src := rand.NewPCG(seed, seed)
	for isub := 0; isub < nsub; isub++ {
		for ichan, sigma := range chanSigma {
			half := math.Sqrt(3) * sigma
			dist := distuv.Uniform{Min: -half, Max: half, Src: src}
			s := c.Series(isub, ichan)
			for ibin := range s {
				s[ibin] = dist.Rand()
			}
		}
	}
	return c, nil
}

// NoisyChannelSigmas returns eight unit standard deviations with channel
// HotChannel at sqrt(10), ten times the variance of the others.
func NoisyChannelSigmas() []float64 {
	sig := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	sig[HotChannel] = math.Sqrt(10)
	return sig
}
