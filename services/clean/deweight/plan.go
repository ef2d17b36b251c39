// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deweight applies coarse, range-based zero-weighting: band-edge
// trimming, receiver response pruning and explicit bad channel, frequency
// and sub-integration lists.
//
// A Plan describes what to zero-weight. It can be applied in process to a
// cube.Mask, or rendered into a "paz -m" command line and run against the
// archive file.
package deweight

import (
	"fmt"
	"math"

	"github.com/AleutianAI/rficlean/services/clean"
	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Interval is an inclusive index range.
type Interval struct {
	Lo int `yaml:"lo" json:"lo"`
	Hi int `yaml:"hi" json:"hi"`
}

// FreqInterval is an inclusive frequency range in MHz.
type FreqInterval struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Plan lists slices to zero-weight.
type Plan struct {
	Channels         []int
	ChannelIntervals []Interval
	Freqs            []float64
	FreqIntervals    []FreqInterval
	Subints          []int
	SubintIntervals  []Interval
}

// Empty reports whether the plan excludes nothing.
func (p Plan) Empty() bool {
	return len(p.Channels) == 0 && len(p.ChannelIntervals) == 0 &&
		len(p.Freqs) == 0 && len(p.FreqIntervals) == 0 &&
		len(p.Subints) == 0 && len(p.SubintIntervals) == 0
}

// Merge returns the union of p and o.
func (p Plan) Merge(o Plan) Plan {
	return Plan{
		Channels:         append(append([]int{}, p.Channels...), o.Channels...),
		ChannelIntervals: append(append([]Interval{}, p.ChannelIntervals...), o.ChannelIntervals...),
		Freqs:            append(append([]float64{}, p.Freqs...), o.Freqs...),
		FreqIntervals:    append(append([]FreqInterval{}, p.FreqIntervals...), o.FreqIntervals...),
		Subints:          append(append([]int{}, p.Subints...), o.Subints...),
		SubintIntervals:  append(append([]Interval{}, p.SubintIntervals...), o.SubintIntervals...),
	}
}

// =============================================================================
// Builders
// =============================================================================

// TrimEdges zero-weights n channels at each edge of an nchan band.
//
// Outputs:
//   - Plan: Two channel intervals, or an empty plan when n is zero.
//   - error: *clean.ConfigurationError if n is negative or the two edges
//     would overlap.
func TrimEdges(nchan, n int) (Plan, error) {
	if n < 0 {
		return Plan{}, &clean.ConfigurationError{Field: "nchan_to_trim", Value: n, Reason: "must not be negative"}
	}
	if 2*n > nchan {
		return Plan{}, &clean.ConfigurationError{Field: "nchan_to_trim", Value: n,
			Reason: fmt.Sprintf("trimming both edges needs at least %d channels, archive has %d", 2*n, nchan)}
	}
	if n == 0 {
		return Plan{}, nil
	}
	return Plan{ChannelIntervals: []Interval{{0, n - 1}, {nchan - n, nchan - 1}}}, nil
}

// PruneBand zero-weights everything outside the receiver response
// [lims[0], lims[1]] MHz of a band with the given centre and bandwidth.
// A nil lims means no pruning.
func PruneBand(centre, bw float64, lims []float64) (Plan, error) {
	if lims == nil {
		return Plan{}, nil
	}
	if len(lims) != 2 || !(lims[0] < lims[1]) {
		return Plan{}, &clean.ConfigurationError{Field: "rcvr_response_lims", Value: lims, Reason: "must be two increasing frequencies"}
	}
	lo := centre - 0.5*math.Abs(bw)
	hi := centre + 0.5*math.Abs(bw)
	return Plan{FreqIntervals: []FreqInterval{{lo, lims[0]}, {lims[1], hi}}}, nil
}

// BadChannels zero-weights explicit channels, inclusive channel intervals,
// the channels containing given frequencies and the channels inside
// frequency intervals.
func BadChannels(chans []int, intervals []Interval, freqs []float64, freqIntervals []FreqInterval) Plan {
	return Plan{Channels: chans, ChannelIntervals: intervals, Freqs: freqs, FreqIntervals: freqIntervals}
}

// BadSubints zero-weights explicit sub-integrations and inclusive
// intervals.
func BadSubints(subints []int, intervals []Interval) Plan {
	return Plan{Subints: subints, SubintIntervals: intervals}
}

// =============================================================================
// In-process application
// =============================================================================

// Apply zero-weights the plan's slices in m.
//
// Description:
//
//	Channel frequencies come from freqs, one per channel. A frequency
//	selects every channel whose span (centre ± half the channel spacing)
//	contains it; a frequency interval selects every channel whose centre
//	lies inside it. Indices out of range are an error and leave m
//	partially updated, as paz would have.
//
// Outputs:
//   - int: Number of slices newly excluded.
//   - error: Non-nil for out-of-range indices or inverted intervals.
func Apply(m *cube.Mask, freqs []float64, p Plan) (int, error) {
	if len(freqs) != m.NChan() {
		return 0, fmt.Errorf("%d channel frequencies for %d channels", len(freqs), m.NChan())
	}
	before := m.CountExcluded()

	chans, err := expand(p.Channels, p.ChannelIntervals, m.NChan())
	if err != nil {
		return 0, fmt.Errorf("channels: %w", err)
	}
	half := 0.0
	if len(freqs) > 1 {
		half = math.Abs(freqs[1]-freqs[0]) / 2
	}
	for ichan, f := range freqs {
		for _, bad := range p.Freqs {
			if math.Abs(f-bad) <= half {
				chans = append(chans, ichan)
			}
		}
		for _, iv := range p.FreqIntervals {
			if f >= iv.Lo && f <= iv.Hi {
				chans = append(chans, ichan)
			}
		}
	}
	for _, ichan := range chans {
		if err := m.ExcludeChannel(ichan); err != nil {
			return m.CountExcluded() - before, err
		}
	}

	subs, err := expand(p.Subints, p.SubintIntervals, m.NSub())
	if err != nil {
		return m.CountExcluded() - before, fmt.Errorf("subints: %w", err)
	}
	for _, isub := range subs {
		if err := m.ExcludeSubint(isub); err != nil {
			return m.CountExcluded() - before, err
		}
	}
	return m.CountExcluded() - before, nil
}

// expand lists explicit indices followed by every index of each interval.
// Intervals are range-checked against n before they are listed.
func expand(idx []int, intervals []Interval, n int) ([]int, error) {
	out := append([]int{}, idx...)
	for _, iv := range intervals {
		if iv.Lo > iv.Hi {
			return nil, fmt.Errorf("inverted interval %d-%d", iv.Lo, iv.Hi)
		}
		if iv.Lo < 0 || iv.Hi >= n {
			return nil, fmt.Errorf("interval %d-%d of %d: %w", iv.Lo, iv.Hi, n, cube.ErrOutOfRange)
		}
		for i := iv.Lo; i <= iv.Hi; i++ {
			out = append(out, i)
		}
	}
	return out, nil
}
