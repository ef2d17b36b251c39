// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads cleaning configuration from YAML.
//
// A configuration file holds base values plus a list of observation
// entries. Each entry matches archives by file name and metadata globs and
// carries a YAML overrides block applied on top of the base values, so a
// receiver or telescope can have its own trim counts, bad channel lists or
// thresholds.
//
//	clean_strategy: clean_iterative
//	nchan_to_trim: 4
//	observations:
//	  - receiver: "MULTI"
//	    overrides:
//	      rcvr_response_lims: [1241, 1497]
//	      badchans: [0, 1]
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rficlean/services/clean"
	"github.com/AleutianAI/rficlean/services/clean/archive"
	"github.com/AleutianAI/rficlean/services/clean/deweight"
)

// Deweighting tools.
const (
	ToolInternal = "internal"
	ToolPaz      = "paz"
)

// DefaultOutname is the output file name template.
const DefaultOutname = "{{.Name}}_{{.Date}}_{{.Secs}}_cleaned.cube"

// Config is the full set of cleaning settings for one archive.
type Config struct {
	// Statistical cleaning. An empty CleanStrategy skips the stage.
	CleanStrategy string  `yaml:"clean_strategy"`
	StrategyMatch string  `yaml:"strategy_match" validate:"oneof=substring exact regexp"`
	ChanThresh    float64 `yaml:"chanthresh" validate:"gt=0"`
	SubintThresh  float64 `yaml:"subintthresh" validate:"gt=0"`
	BinThresh     float64 `yaml:"binthresh" validate:"gt=0"`
	Threshold     float64 `yaml:"threshold" validate:"gt=0"`
	Dispersion    string  `yaml:"dispersion" validate:"oneof=mad clipped"`
	DetrendWindow int     `yaml:"detrend_window" validate:"gte=0"`
	HotBinFill    string  `yaml:"hotbin_fill" validate:"oneof=median noise"`
	Seed          uint64  `yaml:"seed"`
	MaxRounds     int     `yaml:"max_rounds" validate:"gte=0"`

	// Preprocessing applied after loading.
	RemoveBaseline bool `yaml:"remove_baseline"`
	Dedisperse     bool `yaml:"dedisperse"`

	// Zero-weighting applied before statistical cleaning.
	NChanToTrim        int                     `yaml:"nchan_to_trim" validate:"gte=0"`
	RcvrResponseLims   []float64               `yaml:"rcvr_response_lims,flow" validate:"omitempty,len=2"`
	BadChans           []int                   `yaml:"badchans,flow" validate:"dive,gte=0"`
	BadChanIntervals   []deweight.Interval     `yaml:"badchan_intervals"`
	BadFreqs           []float64               `yaml:"badfreqs,flow"`
	BadFreqIntervals   []deweight.FreqInterval `yaml:"badfreq_intervals"`
	BadSubints         []int                   `yaml:"badsubints,flow" validate:"dive,gte=0"`
	BadSubintIntervals []deweight.Interval     `yaml:"badsubint_intervals"`
	DeweightTool       string                  `yaml:"deweight_tool" validate:"oneof=internal paz"`
	PazPath            string                  `yaml:"paz_path"`

	// Batch settings.
	Outname     string `yaml:"outname" validate:"required"`
	Jobs        int    `yaml:"jobs" validate:"gte=0"`
	Ledger      string `yaml:"ledger"`
	MetricsFile string `yaml:"metrics_file"`

	Observations []Observation `yaml:"observations,omitempty"`
}

// Observation overrides settings for matching archives. Every non-empty
// matcher is a path.Match glob and all of them must match.
type Observation struct {
	File      string    `yaml:"file,omitempty"`
	Source    string    `yaml:"source,omitempty"`
	Telescope string    `yaml:"telescope,omitempty"`
	Receiver  string    `yaml:"receiver,omitempty"`
	Backend   string    `yaml:"backend,omitempty"`
	Overrides yaml.Node `yaml:"overrides,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := clean.DefaultParams()
	return &Config{
		CleanStrategy:  "clean_iterative",
		StrategyMatch:  clean.MatchSubstring.String(),
		ChanThresh:     p.ChanThresh,
		SubintThresh:   p.SubintThresh,
		BinThresh:      p.BinThresh,
		Threshold:      p.Threshold,
		Dispersion:     p.Dispersion,
		DetrendWindow:  p.DetrendWindow,
		HotBinFill:     p.HotBinFill,
		Seed:           p.Seed,
		MaxRounds:      p.MaxRounds,
		RemoveBaseline: true,
		Dedisperse:     false,
		DeweightTool:   ToolInternal,
		Outname:        DefaultOutname,
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads a configuration file. Keys absent from the file keep their
// defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and cross-field rules.
//
// Outputs:
//   - error: nil, or one *clean.ConfigurationError per violation joined
//     with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			errs = append(errs, &clean.ConfigurationError{Field: fe.Field(), Value: fe.Value(), Reason: "failed " + reason})
		}
	}
	if lims := c.RcvrResponseLims; len(lims) == 2 && !(lims[0] < lims[1]) {
		errs = append(errs, &clean.ConfigurationError{Field: "rcvr_response_lims", Value: lims, Reason: "low limit must be below high limit"})
	}
	for _, iv := range append(append([]deweight.Interval{}, c.BadChanIntervals...), c.BadSubintIntervals...) {
		if iv.Lo < 0 || iv.Lo > iv.Hi {
			errs = append(errs, &clean.ConfigurationError{Field: "intervals", Value: iv, Reason: "must be non-negative and increasing"})
		}
	}
	if c.CleanStrategy != "" {
		if _, err := c.Strategy(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Params().Validate(); err != nil && len(errs) == 0 {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// Derived values
// =============================================================================

// Params returns the statistical cleaning parameters.
func (c *Config) Params() clean.Params {
	return clean.Params{
		ChanThresh:    c.ChanThresh,
		SubintThresh:  c.SubintThresh,
		BinThresh:     c.BinThresh,
		Threshold:     c.Threshold,
		Dispersion:    c.Dispersion,
		DetrendWindow: c.DetrendWindow,
		HotBinFill:    c.HotBinFill,
		Seed:          c.Seed,
		MaxRounds:     c.MaxRounds,
	}
}

// Strategy resolves CleanStrategy with StrategyMatch.
func (c *Config) Strategy() (clean.StrategyID, error) {
	mode, err := clean.ParseMatchMode(c.StrategyMatch)
	if err != nil {
		return 0, err
	}
	return clean.Select(c.CleanStrategy, mode)
}

// Plan builds the zero-weighting plan for an archive with the given
// metadata and channel count.
func (c *Config) Plan(meta archive.Metadata, nchan int) (deweight.Plan, error) {
	trim, err := deweight.TrimEdges(nchan, c.NChanToTrim)
	if err != nil {
		return deweight.Plan{}, err
	}
	prune, err := deweight.PruneBand(meta.CentreFreq, meta.Bandwidth, c.RcvrResponseLims)
	if err != nil {
		return deweight.Plan{}, err
	}
	return trim.
		Merge(prune).
		Merge(deweight.BadChannels(c.BadChans, c.BadChanIntervals, c.BadFreqs, c.BadFreqIntervals)).
		Merge(deweight.BadSubints(c.BadSubints, c.BadSubintIntervals)), nil
}

// ForArchive returns the configuration for one archive: a copy of c with
// every matching observation's overrides applied in file order.
//
// Inputs:
//   - meta: Archive metadata used by the source, telescope, receiver and
//     backend matchers.
//   - filename: Matched by the file matcher against its base name.
//
// Outputs:
//   - *Config: Validated configuration with no observations.
//   - error: Malformed overrides or an invalid result.
func (c *Config) ForArchive(meta archive.Metadata, filename string) (*Config, error) {
	out := c.clone()
	out.Observations = nil
	for i, obs := range c.Observations {
		ok, err := obs.matches(meta, filename)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		if !ok || obs.Overrides.Kind == 0 {
			continue
		}
		if err := obs.Overrides.Decode(out); err != nil {
			return nil, fmt.Errorf("observation %d overrides: %w", i, err)
		}
		if len(out.Observations) > 0 {
			return nil, fmt.Errorf("observation %d overrides: observations cannot nest", i)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("config for %s: %w", filename, err)
	}
	return out, nil
}

func (o Observation) matches(meta archive.Metadata, filename string) (bool, error) {
	pairs := [][2]string{
		{o.File, filepath.Base(filename)},
		{o.Source, meta.Source},
		{o.Telescope, meta.Telescope},
		{o.Receiver, meta.Receiver},
		{o.Backend, meta.Backend},
	}
	for _, p := range pairs {
		if p[0] == "" {
			continue
		}
		ok, err := filepath.Match(p[0], p[1])
		if err != nil {
			return false, fmt.Errorf("pattern %q: %w", p[0], err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Config) clone() *Config {
	out := *c
	out.RcvrResponseLims = append([]float64(nil), c.RcvrResponseLims...)
	out.BadChans = append([]int(nil), c.BadChans...)
	out.BadChanIntervals = append([]deweight.Interval(nil), c.BadChanIntervals...)
	out.BadFreqs = append([]float64(nil), c.BadFreqs...)
	out.BadFreqIntervals = append([]deweight.FreqInterval(nil), c.BadFreqIntervals...)
	out.BadSubints = append([]int(nil), c.BadSubints...)
	out.BadSubintIntervals = append([]deweight.Interval(nil), c.BadSubintIntervals...)
	out.Observations = append([]Observation(nil), c.Observations...)
	return &out
}
