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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(Dims{NSub: 2, NChan: 3, NBin: 4})
	require.NoError(t, err)
	assert.Len(t, c.Data(), 24)
	assert.Equal(t, "2x3x4", c.Dims().String())

	_, err = New(Dims{NSub: 0, NChan: 3, NBin: 4})
	assert.Error(t, err)
}

func TestFromData_SizeMismatch(t *testing.T) {
	_, err := FromData(Dims{NSub: 1, NChan: 1, NBin: 4}, make([]float64, 3))
	assert.Error(t, err)
}

func TestCube_Layout(t *testing.T) {
	dims := Dims{NSub: 2, NChan: 3, NBin: 4}
	data := make([]float64, dims.Size())
	for i := range data {
		data[i] = float64(i)
	}
	c, err := FromData(dims, data)
	require.NoError(t, err)

	// (isub*nchan + ichan)*nbin + ibin
	assert.Equal(t, 17.0, c.At(1, 1, 1))
	assert.Equal(t, []float64{20, 21, 22, 23}, c.Series(1, 2))
}

func TestCube_SeriesAliases(t *testing.T) {
	c, err := New(Dims{NSub: 2, NChan: 2, NBin: 3})
	require.NoError(t, err)

	s := c.Series(1, 0)
	s[2] = 7
	assert.Equal(t, 7.0, c.At(1, 0, 2))

	c.Set(1, 0, 0, 5)
	assert.Equal(t, 5.0, s[0])

	// Capacity is clipped so appends cannot spill into the next series.
	grown := append(s, 99)
	assert.Len(t, grown, 4)
	assert.Equal(t, 0.0, c.At(1, 1, 0))
}

func TestCube_Clone(t *testing.T) {
	c, err := New(Dims{NSub: 1, NChan: 1, NBin: 2})
	require.NoError(t, err)
	c.Set(0, 0, 0, 1)

	d := c.Clone()
	d.Set(0, 0, 0, 2)
	assert.Equal(t, 1.0, c.At(0, 0, 0))
	assert.Equal(t, c.Dims(), d.Dims())
}
