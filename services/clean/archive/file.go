// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Magic opens every cube container.
const Magic = "RFICUBE\x01"

// maxHeaderLen bounds the YAML header so a corrupt length cannot trigger a
// huge allocation.
const maxHeaderLen = 16 << 20

// header is the YAML document between the magic and the payload.
type header struct {
	Metadata `yaml:",inline"`

	NPol int       `yaml:"npol"`
	Dims cube.Dims `yaml:"dims"`

	ExcludedChannels []int `yaml:"excluded_channels,flow"`
	ExcludedSubints  []int `yaml:"excluded_subints,flow"`

	// PayloadSHA256 is the hex digest of the compressed payload.
	PayloadSHA256 string `yaml:"payload_sha256"`
}

// File is an Archive backed by a cube container.
//
// Thread Safety: Not safe for concurrent use.
type File struct {
	name string
	meta Metadata
	npol int
	dims cube.Dims
	mask *cube.Mask

	// data holds [npol][nsub][nchan][nbin] samples.
	data []float64
}

var _ Archive = (*File)(nil)

// NewFile builds an in-memory archive. data is ordered
// [npol][nsub][nchan][nbin] and is owned by the returned File.
func NewFile(name string, meta Metadata, dims cube.Dims, data []float64) (*File, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if meta.PolState == "" {
		meta.PolState = PolIntensity
	}
	npol, err := polProducts(meta.PolState)
	if err != nil {
		return nil, err
	}
	if len(data) != npol*dims.Size() {
		return nil, fmt.Errorf("archive %s: %d samples for %d polarisations of %s", name, len(data), npol, dims)
	}
	return &File{
		name: name,
		meta: meta,
		npol: npol,
		dims: dims,
		mask: cube.NewMask(dims.NSub, dims.NChan),
		data: data,
	}, nil
}

// Load reads a cube container from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Decode(f, path)
}

// IsContainer reports whether the file at path starts with Magic. External
// tools such as paz read PSRCHIVE formats and cannot open a container.
func IsContainer(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false, nil
	}
	return string(magic[:]) == Magic, nil
}

// Decode reads a cube container from r.
//
// Outputs:
//   - *File: The decoded archive, named name.
//   - error: ErrBadMagic, ErrCorrupt (wrapped) or an I/O error.
func Decode(r io.Reader, name string) (*File, error) {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrBadMagic)
	}
	if string(magic[:]) != Magic {
		return nil, fmt.Errorf("%s: %w", name, ErrBadMagic)
	}

	var hlen uint32
	if err := binary.Read(r, binary.LittleEndian, &hlen); err != nil {
		return nil, fmt.Errorf("%s: read header length: %w", name, err)
	}
	if hlen > maxHeaderLen {
		return nil, fmt.Errorf("%s: header length %d: %w", name, hlen, ErrCorrupt)
	}
	raw := make([]byte, hlen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	var h header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%s: parse header: %w", name, err)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read payload: %w", name, err)
	}
	sum := sha256.Sum256(compressed)
	if h.PayloadSHA256 != "" && h.PayloadSHA256 != hex.EncodeToString(sum[:]) {
		return nil, fmt.Errorf("%s: payload checksum mismatch: %w", name, ErrCorrupt)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%s: decompress payload: %w", name, ErrCorrupt)
	}

	if h.NPol == 0 {
		h.NPol = 1
	}
	want := h.NPol * h.Dims.Size() * 4
	if len(payload) != want {
		return nil, fmt.Errorf("%s: payload has %d bytes, header implies %d: %w", name, len(payload), want, ErrCorrupt)
	}
	data := make([]float64, len(payload)/4)
	for i := range data {
		data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
	}

	f, err := NewFile(name, h.Metadata, h.Dims, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if f.npol != h.NPol {
		return nil, fmt.Errorf("%s: npol %d disagrees with %s: %w", name, h.NPol, f.meta.PolState, ErrCorrupt)
	}
	for _, ichan := range h.ExcludedChannels {
		if err := f.mask.ExcludeChannel(ichan); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, isub := range h.ExcludedSubints {
		if err := f.mask.ExcludeSubint(isub); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return f, nil
}

// Encode writes the container to w.
func (f *File) Encode(w io.Writer) error {
	payload := make([]byte, len(f.data)*4)
	for i, v := range f.data {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(float32(v)))
	}
	compressed := snappy.Encode(nil, payload)
	sum := sha256.Sum256(compressed)

	h := header{
		Metadata:         f.meta,
		NPol:             f.npol,
		Dims:             f.dims,
		ExcludedChannels: f.mask.ExcludedChannels(),
		ExcludedSubints:  f.mask.ExcludedSubints(),
		PayloadSHA256:    hex.EncodeToString(sum[:]),
	}
	raw, err := yaml.Marshal(&h)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(Magic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(raw)))
	buf.Write(raw)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// Unload writes the archive to path atomically: a temporary file in the
// same directory is written, synced and renamed over path.
func (f *File) Unload(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cube-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := f.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	success = true
	return nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Name returns the archive name.
func (f *File) Name() string { return f.name }

// SetName renames the archive, typically after copying it to an output
// path.
func (f *File) SetName(name string) { f.name = name }

// Metadata returns a copy of the metadata.
func (f *File) Metadata() Metadata { return f.meta }

// Dims returns the cube shape.
func (f *File) Dims() cube.Dims { return f.dims }

// NPol returns the number of polarisation products.
func (f *File) NPol() int { return f.npol }

// Mask returns the live mask.
func (f *File) Mask() *cube.Mask { return f.mask }

// ChannelFrequencies returns channel centre frequencies in MHz.
func (f *File) ChannelFrequencies() []float64 {
	return ChannelFrequencies(f.meta.CentreFreq, f.meta.Bandwidth, f.dims.NChan)
}

// Cube returns the total-intensity cube. It aliases the archive data.
func (f *File) Cube() (*cube.Cube, error) {
	if f.npol != 1 {
		return nil, fmt.Errorf("%s: %w", f.name, ErrNotScrunched)
	}
	return cube.FromData(f.dims, f.data)
}

// Pol returns one polarisation product as a cube aliasing the archive
// data.
func (f *File) Pol(ipol int) (*cube.Cube, error) {
	if ipol < 0 || ipol >= f.npol {
		return nil, fmt.Errorf("%s: polarisation %d of %d: %w", f.name, ipol, f.npol, cube.ErrOutOfRange)
	}
	return f.pol(ipol), nil
}

// pol returns the cube of one polarisation product, aliasing the data.
func (f *File) pol(ipol int) *cube.Cube {
	n := f.dims.Size()
	c, _ := cube.FromData(f.dims, f.data[ipol*n:(ipol+1)*n:(ipol+1)*n])
	return c
}
