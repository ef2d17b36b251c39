// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// pulsedCube returns gaussian noise plus a pulse whose amplitude varies per
// series.
func pulsedCube(t *testing.T, dims cube.Dims) *cube.Cube {
	t.Helper()
	c, err := cube.New(dims)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	centre := float64(dims.NBin) / 4
	for isub := 0; isub < dims.NSub; isub++ {
		for ichan := 0; ichan < dims.NChan; ichan++ {
			amp := 1 + 0.1*float64(ichan) + 0.05*float64(isub)
			s := c.Series(isub, ichan)
			for ibin := range s {
				x := (float64(ibin) - centre) / 2
				s[ibin] = amp*5*math.Exp(-x*x) + rng.NormFloat64()
			}
		}
	}
	return c
}

func TestEstimate_SumsIncludedSeries(t *testing.T) {
	c, err := cube.FromData(cube.Dims{NSub: 2, NChan: 2, NBin: 2}, []float64{
		1, 2, // (0,0)
		10, 20, // (0,1)
		100, 200, // (1,0)
		1000, 2000, // (1,1)
	})
	require.NoError(t, err)

	m := cube.NewMask(2, 2)
	assert.Equal(t, []float64{1111, 2222}, Estimate(c, m))

	require.NoError(t, m.ExcludeChannel(1))
	assert.Equal(t, []float64{101, 202}, Estimate(c, m))

	require.NoError(t, m.ExcludeSubint(1))
	assert.Equal(t, []float64{1, 2}, Estimate(c, m))
}

func TestEstimate_AllExcludedIsZero(t *testing.T) {
	c := pulsedCube(t, cube.Dims{NSub: 2, NChan: 3, NBin: 16})
	m := cube.NewMask(2, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ExcludeChannel(i))
	}

	prof := Estimate(c, m)
	assert.Equal(t, make([]float64, 16), prof)

	res := Remove(c, m)
	assert.Equal(t, c.Data(), res.Residual.Data(), "zero profile leaves data untouched")
	for _, a := range res.Amplitudes {
		assert.Equal(t, 0.0, a)
	}
}

func TestFit(t *testing.T) {
	prof := []float64{0, 1, 2, 1}
	assert.Equal(t, 3.0, Fit([]float64{0, 3, 6, 3}, prof))
	assert.Equal(t, 0.0, Fit([]float64{1, 2, 3, 4}, []float64{0, 0, 0, 0}))
	assert.Equal(t, 0.0, Fit([]float64{math.Inf(1), 0, 0, 0}, []float64{1, 0, 0, 0}))
}

func TestRemove_DoesNotModifyInput(t *testing.T) {
	c := pulsedCube(t, cube.Dims{NSub: 3, NChan: 4, NBin: 32})
	before := c.Clone()

	_ = Remove(c, cube.NewMask(3, 4))
	assert.Equal(t, before.Data(), c.Data())
}

func TestRemove_ResidualIsOrthogonal(t *testing.T) {
	c := pulsedCube(t, cube.Dims{NSub: 3, NChan: 4, NBin: 32})
	res := Remove(c, cube.NewMask(3, 4))

	for isub := 0; isub < 3; isub++ {
		for ichan := 0; ichan < 4; ichan++ {
			assert.InDelta(t, 0, Fit(res.Residual.Series(isub, ichan), res.Profile), 1e-9)
			assert.Greater(t, res.Amplitude(isub, ichan), 0.0)
		}
	}
}

func TestRemove_Idempotent(t *testing.T) {
	dims := cube.Dims{NSub: 4, NChan: 6, NBin: 64}
	c := pulsedCube(t, dims)
	m := cube.NewMask(dims.NSub, dims.NChan)
	require.NoError(t, m.ExcludeChannel(2))

	first := Remove(c, m)
	again := Estimate(first.Residual, m)

	var peak float64
	for _, v := range first.Profile {
		peak = math.Max(peak, math.Abs(v))
	}
	require.Greater(t, peak, 10.0)
	for ibin, v := range again {
		assert.InDelta(t, 0, v, 1e-9*peak, "bin %d", ibin)
	}
}

func TestRemove_ExcludedSeriesDoNotShapeProfile(t *testing.T) {
	dims := cube.Dims{NSub: 2, NChan: 4, NBin: 16}
	c := pulsedCube(t, dims)
	m := cube.NewMask(dims.NSub, dims.NChan)
	require.NoError(t, m.ExcludeChannel(1))

	want := Remove(c, m).Profile

	corrupt := c.Clone()
	for isub := 0; isub < dims.NSub; isub++ {
		s := corrupt.Series(isub, 1)
		for i := range s {
			s[i] = 1e6 * float64(i%3)
		}
	}
	assert.Equal(t, want, Remove(corrupt, m).Profile)
}
