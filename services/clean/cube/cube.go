// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cube holds the in-memory intensity cube and its weight mask.
//
// A Cube is indexed by (sub-integration, channel, phase bin). A Mask records
// which channels and sub-integrations are currently included. Neither type
// is safe for concurrent mutation; one cleaning run owns both.
package cube

import (
	"fmt"
)

// Dims describes the shape of a cube.
type Dims struct {
	NSub  int `yaml:"nsub" json:"nsub"`
	NChan int `yaml:"nchan" json:"nchan"`
	NBin  int `yaml:"nbin" json:"nbin"`
}

// Size returns the number of samples in a cube of these dimensions.
func (d Dims) Size() int {
	return d.NSub * d.NChan * d.NBin
}

// Validate checks every dimension is positive.
func (d Dims) Validate() error {
	if d.NSub <= 0 || d.NChan <= 0 || d.NBin <= 0 {
		return fmt.Errorf("cube dimensions must be positive, got nsub=%d nchan=%d nbin=%d", d.NSub, d.NChan, d.NBin)
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.NSub, d.NChan, d.NBin)
}

// Cube is a dense [nsub][nchan][nbin] array stored row-major.
//
// Thread Safety: Concurrent reads are safe. Writes require exclusive access.
type Cube struct {
	dims Dims
	data []float64
}

// New allocates a zero-filled cube.
func New(dims Dims) (*Cube, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &Cube{dims: dims, data: make([]float64, dims.Size())}, nil
}

// FromData wraps an existing row-major slice. The cube takes ownership of
// data; callers must not modify it afterwards.
func FromData(dims Dims, data []float64) (*Cube, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if len(data) != dims.Size() {
		return nil, fmt.Errorf("cube data has %d samples, dimensions %s need %d", len(data), dims, dims.Size())
	}
	return &Cube{dims: dims, data: data}, nil
}

// Dims returns the cube shape.
func (c *Cube) Dims() Dims {
	return c.dims
}

func (c *Cube) offset(isub, ichan int) int {
	return (isub*c.dims.NChan + ichan) * c.dims.NBin
}

// At returns one sample. Indices are not bounds-checked beyond the slice.
func (c *Cube) At(isub, ichan, ibin int) float64 {
	return c.data[c.offset(isub, ichan)+ibin]
}

// Set writes one sample.
func (c *Cube) Set(isub, ichan, ibin int, v float64) {
	c.data[c.offset(isub, ichan)+ibin] = v
}

// Series returns the phase series of one (sub-integration, channel) pair.
// The returned slice aliases the cube; writes through it modify the cube.
func (c *Cube) Series(isub, ichan int) []float64 {
	off := c.offset(isub, ichan)
	return c.data[off : off+c.dims.NBin : off+c.dims.NBin]
}

// Data returns the backing slice in [nsub][nchan][nbin] order.
func (c *Cube) Data() []float64 {
	return c.data
}

// Clone returns a deep copy.
func (c *Cube) Clone() *Cube {
	data := make([]float64, len(c.data))
	copy(data, c.data)
	return &Cube{dims: c.dims, data: data}
}
