// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive loads, preprocesses and persists observation cubes.
//
// The Archive interface is what the cleaning pipeline consumes. File
// implements it over the local ".cube" container: an 8-byte magic, a
// little-endian uint32 header length, a YAML header and a snappy-compressed
// float32 payload ordered [npol][nsub][nchan][nbin].
package archive

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrBadMagic indicates the input is not a cube container.
	ErrBadMagic = errors.New("not a cube container")

	// ErrCorrupt indicates a container whose header and payload disagree.
	ErrCorrupt = errors.New("corrupt cube container")

	// ErrNotScrunched indicates an operation that needs total intensity was
	// called on multi-polarisation data.
	ErrNotScrunched = errors.New("archive has more than one polarisation; pscrunch first")
)

// =============================================================================
// Metadata
// =============================================================================

// Polarisation states.
const (
	PolIntensity = "Intensity"
	PolPPQQ      = "PPQQ"
	PolCoherence = "Coherence"
	PolStokes    = "Stokes"
)

// Metadata describes an observation. It is stored in the container header
// and used for per-observation configuration matching.
type Metadata struct {
	Source    string  `yaml:"source" json:"source"`
	Telescope string  `yaml:"telescope" json:"telescope"`
	Receiver  string  `yaml:"receiver" json:"receiver"`
	Backend   string  `yaml:"backend" json:"backend"`
	MJD       float64 `yaml:"mjd" json:"mjd"`

	// CentreFreq and Bandwidth are in MHz. A negative bandwidth means
	// channel frequency decreases with channel index.
	CentreFreq float64 `yaml:"centre_freq_mhz" json:"centre_freq_mhz"`
	Bandwidth  float64 `yaml:"bandwidth_mhz" json:"bandwidth_mhz"`

	// DM is in pc cm^-3, Period in seconds.
	DM     float64 `yaml:"dm" json:"dm"`
	Period float64 `yaml:"period_s" json:"period_s"`

	PolState        string `yaml:"pol_state" json:"pol_state"`
	Dedispersed     bool   `yaml:"dedispersed" json:"dedispersed"`
	BaselineRemoved bool   `yaml:"baseline_removed" json:"baseline_removed"`
}

// =============================================================================
// Archive interface
// =============================================================================

// Archive is the data source and sink of one cleaning run.
//
// Thread Safety: Implementations need not be safe for concurrent use. One
// pipeline worker owns an Archive at a time.
type Archive interface {
	// Name identifies the archive in logs and errors, usually its path.
	Name() string

	// Metadata returns a copy of the observation metadata.
	Metadata() Metadata

	// Dims returns (nsub, nchan, nbin).
	Dims() cube.Dims

	// NPol returns the number of polarisation products.
	NPol() int

	// Cube returns the total-intensity data. Writes to it persist on
	// Unload. Fails with ErrNotScrunched when NPol() > 1.
	Cube() (*cube.Cube, error)

	// Mask returns the live weight mask. Exclusions persist on Unload.
	Mask() *cube.Mask

	// ChannelFrequencies returns each channel's centre frequency in MHz.
	ChannelFrequencies() []float64

	// PScrunch reduces the data to total intensity.
	PScrunch() error

	// RemoveBaseline subtracts the off-pulse mean from every series.
	RemoveBaseline() error

	// Dedisperse aligns channels by removing the dispersion delay.
	Dedisperse() error

	// Clone returns an independent copy, used to preprocess and clean
	// without touching the original data.
	Clone() Archive

	// Merge applies the exclusions and hot-bin repairs made on a cleaned
	// Clone back onto this archive. before is the clone's cube ahead of
	// cleaning; nil merges only the mask.
	Merge(work Archive, before *cube.Cube) error

	// Unload persists data, mask and metadata to path.
	Unload(path string) error
}

// ChannelFrequencies computes channel centre frequencies for nchan
// channels spanning bw MHz around centre.
func ChannelFrequencies(centre, bw float64, nchan int) []float64 {
	freqs := make([]float64, nchan)
	width := bw / float64(nchan)
	for i := range freqs {
		freqs[i] = centre + (float64(i)-float64(nchan-1)/2)*width
	}
	return freqs
}

func polProducts(state string) (int, error) {
	switch state {
	case PolIntensity:
		return 1, nil
	case PolPPQQ:
		return 2, nil
	case PolCoherence, PolStokes:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown polarisation state %q", state)
	}
}
