// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/cube/cubetest"
	"github.com/AleutianAI/rficlean/services/clean/stats"
)

// -----------------------------------------------------------------------------
// Score Tests
// -----------------------------------------------------------------------------

func TestScore_HotChannelStd(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)

	v, err := Score(c, m, AxisChannel, StatStd, Options{})
	require.NoError(t, err)

	assert.Equal(t, 8, v.Len())
	assert.Equal(t, []int{cubetest.HotChannel}, v.Exceeding(5.0))

	idx, worst, ok := v.Worst()
	require.True(t, ok)
	assert.Equal(t, cubetest.HotChannel, idx)
	assert.InDelta(t, 45.5, worst, 0.5)

	for i, s := range v.Values {
		if i != cubetest.HotChannel {
			assert.Less(t, s, 1.0, "channel %d", i)
		}
	}
}

func TestScore_MeanIsZeroForZeroMeanSeries(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)

	for _, axis := range []Axis{AxisChannel, AxisSubint} {
		v, err := Score(c, m, axis, StatMean, Options{})
		require.NoError(t, err)
		for i, s := range v.Values {
			assert.Equal(t, 0.0, s, "%s %d", axis, i)
		}
		assert.Empty(t, v.Exceeding(0))
	}
}

func TestScore_SubintStd(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)
	require.NoError(t, m.ExcludeChannel(cubetest.HotChannel))

	v, err := Score(c, m, AxisSubint, StatStd, Options{})
	require.NoError(t, err)

	// Scales 1 + k/64 in pairs: MAD is 1/64, the extremes sit 2/64 out.
	_, worst, ok := v.Worst()
	require.True(t, ok)
	assert.InDelta(t, 2/stats.MADScale, worst, 1e-6)
	assert.Empty(t, v.Exceeding(2.0))
}

func TestScore_WeightExclusivity(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)
	require.NoError(t, m.ExcludeChannel(cubetest.HotChannel))
	require.NoError(t, m.ExcludeChannel(6))
	require.NoError(t, m.ExcludeSubint(4))

	corrupt := c.Clone()
	d := corrupt.Dims()
	for isub := 0; isub < d.NSub; isub++ {
		for ichan := 0; ichan < d.NChan; ichan++ {
			if m.Included(isub, ichan) {
				continue
			}
			s := corrupt.Series(isub, ichan)
			for i := range s {
				s[i] = 1e12 * float64((i*7+ichan)%5-2)
			}
		}
	}

	for _, axis := range []Axis{AxisChannel, AxisSubint} {
		for _, st := range []Statistic{StatMean, StatStd} {
			for _, opts := range []Options{{}, {Dispersion: stats.EstimatorClipped}, {DetrendWindow: 3}} {
				want, err := Score(c, m, axis, st, opts)
				require.NoError(t, err)
				got, err := Score(corrupt, m, axis, st, opts)
				require.NoError(t, err)
				assert.Equal(t, want.Values, got.Values, "%s %s %+v", axis, st, opts)
				assert.Equal(t, want.Included, got.Included)
			}
		}
	}
}

func TestScore_ExcludedSlicesCarryNoScore(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)
	require.NoError(t, m.ExcludeChannel(cubetest.HotChannel))

	v, err := Score(c, m, AxisChannel, StatStd, Options{})
	require.NoError(t, err)
	assert.False(t, v.Included[cubetest.HotChannel])
	assert.Equal(t, 0.0, v.Values[cubetest.HotChannel])
	assert.NotContains(t, v.Exceeding(-1e9), cubetest.HotChannel)
}

func TestScore_InsufficientData(t *testing.T) {
	c := cubetest.Standard()

	t.Run("every channel excluded", func(t *testing.T) {
		m := cube.NewMask(10, 8)
		for i := 0; i < 8; i++ {
			require.NoError(t, m.ExcludeChannel(i))
		}
		_, err := Score(c, m, AxisChannel, StatStd, Options{})
		assert.ErrorIs(t, err, stats.ErrInsufficientData)

		_, err = Score(c, m, AxisSubint, StatStd, Options{})
		assert.ErrorIs(t, err, stats.ErrInsufficientData, "no cross slice left")
	})

	t.Run("every subint excluded", func(t *testing.T) {
		m := cube.NewMask(10, 8)
		for i := 0; i < 10; i++ {
			require.NoError(t, m.ExcludeSubint(i))
		}
		_, err := Score(c, m, AxisChannel, StatMean, Options{})
		assert.ErrorIs(t, err, stats.ErrInsufficientData)
	})
}

func TestScore_MaskMismatch(t *testing.T) {
	_, err := Score(cubetest.Standard(), cube.NewMask(8, 10), AxisChannel, StatStd, Options{})
	assert.Error(t, err)
}

func TestScore_DetrendWindowFollowsRamp(t *testing.T) {
	scales := make([]float64, 32)
	for k := range scales {
		scales[k] = 1 + float64(k)/4
	}
	scales[16] += 0.5

	c, err := cubetest.Patterned(scales, []float64{1, 1}, 4)
	require.NoError(t, err)
	m := cube.NewMask(2, 32)

	global, err := Score(c, m, AxisChannel, StatStd, Options{})
	require.NoError(t, err)
	assert.Less(t, global.Values[16], 5.0, "ramp hides the step")

	local, err := Score(c, m, AxisChannel, StatStd, Options{DetrendWindow: 4})
	require.NoError(t, err)
	assert.Greater(t, local.Values[16], 5.0)
}

// -----------------------------------------------------------------------------
// Vector Tests
// -----------------------------------------------------------------------------

func TestVector_ThresholdBoundary(t *testing.T) {
	v := &Vector{
		Values:   []float64{1.0, 2.0, 2.0000001, 5.0},
		Included: []bool{true, true, true, false},
	}

	assert.Equal(t, []int{2}, v.Exceeding(2.0), "equal is kept, greater is excluded")
	assert.Equal(t, []int{1, 2}, v.Exceeding(1.9999999))
}

func TestVector_Worst(t *testing.T) {
	t.Run("lowest index wins ties", func(t *testing.T) {
		v := &Vector{Values: []float64{1, 3, 3, 2}, Included: []bool{true, true, true, true}}
		idx, s, ok := v.Worst()
		assert.True(t, ok)
		assert.Equal(t, 1, idx)
		assert.Equal(t, 3.0, s)
	})

	t.Run("skips excluded", func(t *testing.T) {
		v := &Vector{Values: []float64{-4, 9, -1}, Included: []bool{true, false, true}}
		idx, s, ok := v.Worst()
		assert.True(t, ok)
		assert.Equal(t, 2, idx)
		assert.Equal(t, -1.0, s)
	})

	t.Run("nothing included", func(t *testing.T) {
		v := &Vector{Values: []float64{1}, Included: []bool{false}}
		idx, _, ok := v.Worst()
		assert.False(t, ok)
		assert.Equal(t, -1, idx)
	})
}

func TestAxisAndStatisticNames(t *testing.T) {
	assert.Equal(t, "channel", AxisChannel.String())
	assert.Equal(t, "subint", AxisSubint.String())
	assert.Equal(t, "mean", StatMean.String())
	assert.Equal(t, "std", StatStd.String())
}
