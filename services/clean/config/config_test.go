// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rficlean/services/clean"
	"github.com/AleutianAI/rficlean/services/clean/archive"
	"github.com/AleutianAI/rficlean/services/clean/deweight"
)

const sample = `
clean_strategy: clean_simple
chanthresh: 4
nchan_to_trim: 2
badchans: [5]
badsubint_intervals:
  - {lo: 3, hi: 4}
observations:
  - receiver: "MULTI"
    overrides:
      rcvr_response_lims: [1300, 1500]
      chanthresh: 6
  - file: "*_bad.cube"
    telescope: "Parkes"
    overrides:
      badchans: [1, 2]
      clean_strategy: iterative
`

func meta() archive.Metadata {
	return archive.Metadata{Source: "J0437-4715", Telescope: "Parkes", Receiver: "MULTI", CentreFreq: 1400, Bandwidth: 400}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, clean.DefaultParams(), cfg.Params())

	id, err := cfg.Strategy()
	require.NoError(t, err)
	assert.Equal(t, clean.StrategyIterative, id)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "clean_simple", cfg.CleanStrategy)
	assert.Equal(t, 4.0, cfg.ChanThresh)
	assert.Equal(t, clean.DefaultSubintThresh, cfg.SubintThresh, "absent keys keep defaults")
	assert.Equal(t, DefaultOutname, cfg.Outname)
	assert.Equal(t, []deweight.Interval{{3, 4}}, cfg.BadSubintIntervals)
	assert.Len(t, cfg.Observations, 2)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default().Outname, cfg.Outname)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(strings.NewReader("chanthresold: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"negative threshold", func(c *Config) { c.ChanThresh = -1 }, "chanthresh"},
		{"unknown dispersion", func(c *Config) { c.Dispersion = "iqr" }, "dispersion"},
		{"negative trim", func(c *Config) { c.NChanToTrim = -1 }, "nchan_to_trim"},
		{"one receiver limit", func(c *Config) { c.RcvrResponseLims = []float64{1300} }, "rcvr_response_lims"},
		{"inverted receiver limits", func(c *Config) { c.RcvrResponseLims = []float64{1500, 1300} }, "rcvr_response_lims"},
		{"negative bad channel", func(c *Config) { c.BadChans = []int{-2} }, "badchans[0]"},
		{"unknown tool", func(c *Config) { c.DeweightTool = "psrsh" }, "deweight_tool"},
		{"inverted interval", func(c *Config) { c.BadChanIntervals = []deweight.Interval{{4, 1}} }, "intervals"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			err := cfg.Validate()
			var cfgErr *clean.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_AmbiguousStrategy(t *testing.T) {
	cfg := Default()
	cfg.CleanStrategy = "clean"
	err := cfg.Validate()
	var selErr *clean.StrategySelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Len(t, selErr.Matches, 2)
}

func TestValidate_EmptyStrategySkipsSelection(t *testing.T) {
	cfg := Default()
	cfg.CleanStrategy = ""
	assert.NoError(t, cfg.Validate())
}

func TestForArchive(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	t.Run("receiver match", func(t *testing.T) {
		got, err := cfg.ForArchive(meta(), "/data/obs.cube")
		require.NoError(t, err)
		assert.Equal(t, 6.0, got.ChanThresh)
		assert.Equal(t, []float64{1300, 1500}, got.RcvrResponseLims)
		assert.Equal(t, []int{5}, got.BadChans)
		assert.Equal(t, "clean_simple", got.CleanStrategy)
		assert.Empty(t, got.Observations)
	})

	t.Run("both match in order", func(t *testing.T) {
		got, err := cfg.ForArchive(meta(), "/data/obs_bad.cube")
		require.NoError(t, err)
		assert.Equal(t, 6.0, got.ChanThresh)
		assert.Equal(t, []int{1, 2}, got.BadChans)
		assert.Equal(t, "iterative", got.CleanStrategy)
	})

	t.Run("no match", func(t *testing.T) {
		m := meta()
		m.Receiver = "UWL"
		got, err := cfg.ForArchive(m, "obs.cube")
		require.NoError(t, err)
		assert.Equal(t, 4.0, got.ChanThresh)
		assert.Nil(t, got.RcvrResponseLims)
	})

	t.Run("base is untouched", func(t *testing.T) {
		_, err := cfg.ForArchive(meta(), "x_bad.cube")
		require.NoError(t, err)
		assert.Equal(t, []int{5}, cfg.BadChans)
		assert.Equal(t, 4.0, cfg.ChanThresh)
	})

	t.Run("override that breaks validation", func(t *testing.T) {
		bad, err := Parse(strings.NewReader("observations:\n  - source: \"J*\"\n    overrides:\n      chanthresh: 0\n"))
		require.NoError(t, err)
		_, err = bad.ForArchive(meta(), "obs.cube")
		var cfgErr *clean.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "chanthresh", cfgErr.Field)
	})

	t.Run("bad pattern", func(t *testing.T) {
		bad, err := Parse(strings.NewReader("observations:\n  - source: \"[\"\n    overrides:\n      seed: 2\n"))
		require.NoError(t, err)
		_, err = bad.ForArchive(meta(), "obs.cube")
		assert.Error(t, err)
	})
}

func TestPlan(t *testing.T) {
	cfg := Default()
	cfg.NChanToTrim = 1
	cfg.RcvrResponseLims = []float64{1300, 1500}
	cfg.BadChans = []int{4}
	cfg.BadSubints = []int{0}

	plan, err := cfg.Plan(meta(), 8)
	require.NoError(t, err)
	assert.Equal(t, []deweight.Interval{{0, 0}, {7, 7}}, plan.ChannelIntervals)
	assert.Equal(t, []deweight.FreqInterval{{1200, 1300}, {1500, 1600}}, plan.FreqIntervals)
	assert.Equal(t, []int{4}, plan.Channels)
	assert.Equal(t, []int{0}, plan.Subints)

	cfg.NChanToTrim = 5
	_, err = cfg.Plan(meta(), 8)
	var cfgErr *clean.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rficlean.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NChanToTrim)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.BadChans = []int{1, 2}
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg.BadChans, back.BadChans)
	assert.Equal(t, cfg.Outname, back.Outname)
}
