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
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/cube/cubetest"
	"github.com/AleutianAI/rficlean/services/clean/profile"
	"github.com/AleutianAI/rficlean/services/clean/score"
	"github.com/AleutianAI/rficlean/services/clean/stats"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noisyCube builds a seeded gaussian cube with a handful of corrupted
// channels and sub-integrations.
func noisyCube(t *testing.T) *cube.Cube {
	t.Helper()
	dims := cube.Dims{NSub: 12, NChan: 16, NBin: 32}
	c, err := cube.New(dims)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 5))
	for isub := 0; isub < dims.NSub; isub++ {
		for ichan := 0; ichan < dims.NChan; ichan++ {
			sigma := 1.0
			switch {
			case ichan == 2 || ichan == 11:
				sigma = 6
			case isub == 7:
				sigma = 4
			}
			s := c.Series(isub, ichan)
			for i := range s {
				x := float64(i-8) / 1.5
				s[i] = 3*math.Exp(-x*x) + sigma*rng.NormFloat64()
			}
		}
	}
	return c
}

// -----------------------------------------------------------------------------
// Single-pass sweep
// -----------------------------------------------------------------------------

func TestRun_SimpleExcludesHotChannel(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)

	rep, err := Run(StrategySimple, c, m, DefaultParams(), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{cubetest.HotChannel}, rep.ExcludedChannels)
	assert.Empty(t, rep.ExcludedSubints)
	assert.Equal(t, 0, rep.HotBins)
	assert.Empty(t, rep.Rounds)
	assert.True(t, rep.Converged)
	assert.Equal(t, "clean_simple", rep.StrategyName())

	assert.Equal(t, []int{cubetest.HotChannel}, m.ExcludedChannels())
	assert.Empty(t, m.ExcludedSubints())
}

func TestRun_SimpleThresholdBoundary(t *testing.T) {
	base := cubetest.Standard()
	res := profile.Remove(base, cube.NewMask(10, 8))
	v, err := score.Score(res.Residual, cube.NewMask(10, 8), score.AxisChannel, score.StatStd, score.Options{})
	require.NoError(t, err)
	hot := v.Values[cubetest.HotChannel]

	t.Run("equal is not excluded", func(t *testing.T) {
		p := DefaultParams()
		p.ChanThresh = hot
		m := cube.NewMask(10, 8)
		rep, err := Run(StrategySimple, cubetest.Standard(), m, p, quietLogger())
		require.NoError(t, err)
		assert.Empty(t, rep.ExcludedChannels)
	})

	t.Run("strictly greater is excluded", func(t *testing.T) {
		p := DefaultParams()
		p.ChanThresh = math.Nextafter(hot, 0)
		m := cube.NewMask(10, 8)
		rep, err := Run(StrategySimple, cubetest.Standard(), m, p, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, []int{cubetest.HotChannel}, rep.ExcludedChannels)
	})
}

func TestRun_SimpleRepairsHotBins(t *testing.T) {
	c := cubetest.Standard()
	// Opposite spikes within each series keep its mean at zero, and the
	// mirrored pair in the next sub-integration keeps the profile at zero.
	c.Set(0, 1, 4, 7)
	c.Set(0, 1, 5, -7)
	c.Set(1, 1, 4, -7)
	c.Set(1, 1, 5, 7)
	m := cube.NewMask(10, 8)

	rep, err := Run(StrategySimple, c, m, DefaultParams(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{cubetest.HotChannel}, rep.ExcludedChannels)
	assert.Empty(t, rep.ExcludedSubints)
	assert.Equal(t, 4, rep.HotBins)
	assert.Equal(t, 2, rep.SeriesRepaired)
	for isub := 0; isub < 2; isub++ {
		for ibin := 4; ibin < 6; ibin++ {
			assert.Less(t, math.Abs(c.At(isub, 1, ibin)), 3.0)
		}
	}
}

func TestRun_SimpleOnNoise(t *testing.T) {
	c := noisyCube(t)
	m := cube.NewMask(12, 16)

	rep, err := Run(StrategySimple, c, m, DefaultParams(), quietLogger())
	require.NoError(t, err)
	assert.Subset(t, rep.ExcludedChannels, []int{2, 11})
	assert.Contains(t, rep.ExcludedSubints, 7)
}

// -----------------------------------------------------------------------------
// Iterative loop
// -----------------------------------------------------------------------------

func TestRun_IterativeOneRoundThenConverges(t *testing.T) {
	c := cubetest.Standard()
	m := cube.NewMask(10, 8)

	rep, err := Run(StrategyIterative, c, m, DefaultParams(), quietLogger())
	require.NoError(t, err)

	require.Len(t, rep.Rounds, 2)
	assert.Equal(t, "channel", rep.Rounds[0].Action)
	assert.Equal(t, cubetest.HotChannel, rep.Rounds[0].Index)
	assert.Equal(t, 1, rep.Rounds[0].CountExcluded)
	assert.Equal(t, "stop", rep.Rounds[1].Action)
	assert.Equal(t, -1, rep.Rounds[1].Index)
	assert.LessOrEqual(t, rep.Rounds[1].ChannelScore, 2.0)
	assert.LessOrEqual(t, rep.Rounds[1].SubintScore, 2.0)

	assert.True(t, rep.Converged)
	assert.Equal(t, []int{cubetest.HotChannel}, rep.ExcludedChannels)
	assert.Empty(t, rep.ExcludedSubints)
	assert.Equal(t, 0, rep.HotBins, "iterative loop does not repair bins")
}

// -----------------------------------------------------------------------------
// Uniform noise with one loud channel
// -----------------------------------------------------------------------------

// noiseSeed gives a cube whose seven quiet channels and ten
// sub-integrations all score under 1.1 once the loud channel is gone.
// Scores are relative to the spread of the slices themselves, so at a
// threshold of 2 many seeds also exclude one or two quiet slices.
const noiseSeed = 8

func loudChannelCube(t *testing.T, seed uint64) *cube.Cube {
	t.Helper()
	c, err := cubetest.UniformNoise(10, 64, cubetest.NoisyChannelSigmas(), seed)
	require.NoError(t, err)
	return c
}

func TestRun_SimpleOnUniformNoise(t *testing.T) {
	m := cube.NewMask(10, 8)
	p := DefaultParams()
	p.ChanThresh = 5

	rep, err := Run(StrategySimple, loudChannelCube(t, noiseSeed), m, p, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{cubetest.HotChannel}, rep.ExcludedChannels)
	assert.Empty(t, rep.ExcludedSubints)
}

func TestRun_IterativeOnUniformNoise(t *testing.T) {
	m := cube.NewMask(10, 8)
	p := DefaultParams()
	p.Threshold = 2

	rep, err := Run(StrategyIterative, loudChannelCube(t, noiseSeed), m, p, quietLogger())
	require.NoError(t, err)

	require.Len(t, rep.Rounds, 2)
	assert.Equal(t, "channel", rep.Rounds[0].Action)
	assert.Equal(t, cubetest.HotChannel, rep.Rounds[0].Index)
	assert.Greater(t, rep.Rounds[0].ChannelScore, 40.0)
	assert.Equal(t, "stop", rep.Rounds[1].Action)
	assert.Less(t, rep.Rounds[1].ChannelScore, 1.5)
	assert.Less(t, rep.Rounds[1].SubintScore, 1.5)
	assert.True(t, rep.Converged)
	assert.Equal(t, []int{cubetest.HotChannel}, m.ExcludedChannels())
	assert.Empty(t, m.ExcludedSubints())
}

func TestRun_LoudChannelGoesFirstForAnySeed(t *testing.T) {
	p := DefaultParams()
	p.ChanThresh = 5
	p.Threshold = 2
	for seed := uint64(1); seed <= 40; seed++ {
		simple, err := Run(StrategySimple, loudChannelCube(t, seed), cube.NewMask(10, 8), p, quietLogger())
		require.NoError(t, err)
		assert.Contains(t, simple.ExcludedChannels, cubetest.HotChannel, "seed %d", seed)

		iter, err := Run(StrategyIterative, loudChannelCube(t, seed), cube.NewMask(10, 8), p, quietLogger())
		require.NoError(t, err)
		require.NotEmpty(t, iter.Rounds)
		assert.Equal(t, "channel", iter.Rounds[0].Action, "seed %d", seed)
		assert.Equal(t, cubetest.HotChannel, iter.Rounds[0].Index, "seed %d", seed)
	}
}

func TestRun_IterativeMonotonicAndBounded(t *testing.T) {
	c := noisyCube(t)
	m := cube.NewMask(12, 16)
	p := DefaultParams()
	p.Threshold = 1.5

	rep, err := Run(StrategyIterative, c, m, p, quietLogger())
	require.NoError(t, err)

	require.NotEmpty(t, rep.Rounds)
	assert.LessOrEqual(t, len(rep.Rounds), 12+16+1)
	prev := 0
	for i, r := range rep.Rounds {
		if r.Action == "stop" {
			assert.Equal(t, len(rep.Rounds)-1, i, "stop is terminal")
			assert.Equal(t, prev, r.CountExcluded)
			continue
		}
		assert.Equal(t, prev+1, r.CountExcluded, "round %d", r.Round)
		prev = r.CountExcluded
	}
	assert.Equal(t, m.CountExcluded(), len(rep.ExcludedChannels)+len(rep.ExcludedSubints))
	assert.Contains(t, rep.ExcludedChannels, 2)
	assert.Contains(t, rep.ExcludedChannels, 11)
}

func TestRun_IterativePrefersChannelOnTie(t *testing.T) {
	// Identical channel and sub-integration scales make the two score
	// vectors bit-identical.
	scales := []float64{1, 1, 1 + 1.0/64, 1 + 1.0/64, 1 + 2.0/64, 1 + 2.0/64, 3, 3}
	c, err := cubetest.Patterned(scales, scales, 8)
	require.NoError(t, err)
	m := cube.NewMask(8, 8)

	rep, err := Run(StrategyIterative, c, m, DefaultParams(), quietLogger())
	require.NoError(t, err)

	first := rep.Rounds[0]
	require.Equal(t, first.ChannelScore, first.SubintScore)
	assert.Greater(t, first.ChannelScore, 2.0)
	assert.Equal(t, "channel", first.Action)
	assert.Equal(t, 6, first.Index, "lowest index among tied channels")
}

func TestRun_IterativeMaxRounds(t *testing.T) {
	p := DefaultParams()
	p.MaxRounds = 1

	rep, err := Run(StrategyIterative, cubetest.Standard(), cube.NewMask(10, 8), p, quietLogger())
	require.NoError(t, err)
	assert.Len(t, rep.Rounds, 1)
	assert.False(t, rep.Converged)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

func TestRun_AllChannelsExcluded(t *testing.T) {
	for _, id := range Strategies() {
		t.Run(id.String(), func(t *testing.T) {
			m := cube.NewMask(10, 8)
			for i := 0; i < 8; i++ {
				require.NoError(t, m.ExcludeChannel(i))
			}
			_, err := Run(id, cubetest.Standard(), m, DefaultParams(), quietLogger())
			assert.ErrorIs(t, err, stats.ErrInsufficientData)
		})
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	c := cubetest.Standard()

	_, err := Run(StrategyID(99), c, cube.NewMask(10, 8), DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	p := DefaultParams()
	p.ChanThresh = -1
	_, err = Run(StrategySimple, c, cube.NewMask(10, 8), p, nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chanthresh", cfgErr.Field)

	_, err = Run(StrategySimple, c, cube.NewMask(8, 10), DefaultParams(), nil)
	assert.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Params)
		field string
	}{
		{"defaults", func(*Params) {}, ""},
		{"zero subintthresh", func(p *Params) { p.SubintThresh = 0 }, "subintthresh"},
		{"nan binthresh", func(p *Params) { p.BinThresh = math.NaN() }, "binthresh"},
		{"inf threshold", func(p *Params) { p.Threshold = math.Inf(1) }, "threshold"},
		{"negative window", func(p *Params) { p.DetrendWindow = -2 }, "detrend_window"},
		{"negative rounds", func(p *Params) { p.MaxRounds = -1 }, "max_rounds"},
		{"bad dispersion", func(p *Params) { p.Dispersion = "iqr" }, "dispersion"},
		{"bad fill", func(p *Params) { p.HotBinFill = "zero" }, "hotbin_fill"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.edit(&p)
			err := p.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, cfgErr.Error(), tt.field)
		})
	}
}
