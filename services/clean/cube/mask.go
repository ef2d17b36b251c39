// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cube

import (
	"errors"
	"fmt"
)

// ErrOutOfRange indicates a channel or sub-integration index outside the
// mask.
var ErrOutOfRange = errors.New("index out of range")

// Mask records which channels and sub-integrations are included.
//
// Description:
//
//	Mask has no un-exclude operation, so exclusions made during one
//	cleaning run are monotonic. Profile estimation and scoring read the
//	mask directly, so an exclusion is visible to the next computation
//	without any explicit refresh.
//
// Thread Safety: Not safe for concurrent mutation.
type Mask struct {
	chans   []bool
	subints []bool
}

// NewMask returns a mask with every channel and sub-integration included.
func NewMask(nsub, nchan int) *Mask {
	m := &Mask{chans: make([]bool, nchan), subints: make([]bool, nsub)}
	for i := range m.chans {
		m.chans[i] = true
	}
	for i := range m.subints {
		m.subints[i] = true
	}
	return m
}

// MaskFromWeights builds a mask from per-sub-integration and per-channel
// inclusion flags. The slices are copied.
func MaskFromWeights(subints, chans []bool) *Mask {
	m := &Mask{chans: make([]bool, len(chans)), subints: make([]bool, len(subints))}
	copy(m.chans, chans)
	copy(m.subints, subints)
	return m
}

// NChan returns the channel count.
func (m *Mask) NChan() int { return len(m.chans) }

// NSub returns the sub-integration count.
func (m *Mask) NSub() int { return len(m.subints) }

// Fits reports whether the mask matches the given cube dimensions.
func (m *Mask) Fits(d Dims) bool {
	return len(m.chans) == d.NChan && len(m.subints) == d.NSub
}

// ExcludeChannel zero-weights a channel. Excluding an already excluded
// channel is a no-op.
func (m *Mask) ExcludeChannel(ichan int) error {
	if ichan < 0 || ichan >= len(m.chans) {
		return fmt.Errorf("exclude channel %d of %d: %w", ichan, len(m.chans), ErrOutOfRange)
	}
	m.chans[ichan] = false
	return nil
}

// ExcludeSubint zero-weights a sub-integration. Excluding an already
// excluded sub-integration is a no-op.
func (m *Mask) ExcludeSubint(isub int) error {
	if isub < 0 || isub >= len(m.subints) {
		return fmt.Errorf("exclude sub-integration %d of %d: %w", isub, len(m.subints), ErrOutOfRange)
	}
	m.subints[isub] = false
	return nil
}

// IsChannelExcluded reports whether a channel is excluded.
func (m *Mask) IsChannelExcluded(ichan int) bool {
	return !m.chans[ichan]
}

// IsSubintExcluded reports whether a sub-integration is excluded.
func (m *Mask) IsSubintExcluded(isub int) bool {
	return !m.subints[isub]
}

// Included reports whether the (isub, ichan) series is included, meaning
// both its sub-integration and its channel are included.
func (m *Mask) Included(isub, ichan int) bool {
	return m.subints[isub] && m.chans[ichan]
}

// CountExcluded returns the number of excluded channels plus the number of
// excluded sub-integrations.
func (m *Mask) CountExcluded() int {
	n := 0
	for _, w := range m.chans {
		if !w {
			n++
		}
	}
	for _, w := range m.subints {
		if !w {
			n++
		}
	}
	return n
}

// ExcludedChannels returns excluded channel indices in ascending order.
func (m *Mask) ExcludedChannels() []int {
	return falseIndices(m.chans)
}

// ExcludedSubints returns excluded sub-integration indices in ascending
// order.
func (m *Mask) ExcludedSubints() []int {
	return falseIndices(m.subints)
}

// ChannelWeights returns a copy of the per-channel inclusion flags.
func (m *Mask) ChannelWeights() []bool {
	out := make([]bool, len(m.chans))
	copy(out, m.chans)
	return out
}

// SubintWeights returns a copy of the per-sub-integration inclusion flags.
func (m *Mask) SubintWeights() []bool {
	out := make([]bool, len(m.subints))
	copy(out, m.subints)
	return out
}

// Clone returns an independent copy.
func (m *Mask) Clone() *Mask {
	return MaskFromWeights(m.subints, m.chans)
}

func falseIndices(w []bool) []int {
	out := []int{}
	for i, v := range w {
		if !v {
			out = append(out, i)
		}
	}
	return out
}
