// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/AleutianAI/rficlean/services/clean/archive"
)

// Inputs selects the files of a batch.
type Inputs struct {
	// Files are explicit paths, used as given.
	Files []string

	// Globs are expanded with filepath.Glob.
	Globs []string

	// ExcludeFiles and ExcludeGlobs remove files from the list.
	ExcludeFiles []string
	ExcludeGlobs []string
}

// Resolve returns the files to clean: explicit files and glob matches, in
// that order, without duplicates, minus exclusions.
func (in Inputs) Resolve() ([]string, error) {
	candidates := append([]string{}, in.Files...)
	for _, g := range in.Globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", g, err)
		}
		candidates = append(candidates, matches...)
	}

	excluded := make(map[string]bool)
	for _, f := range in.ExcludeFiles {
		excluded[filepath.Clean(f)] = true
	}
	for _, g := range in.ExcludeGlobs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("exclude glob %q: %w", g, err)
		}
		for _, m := range matches {
			excluded[filepath.Clean(m)] = true
		}
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, f := range candidates {
		key := filepath.Clean(f)
		if excluded[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out, nil
}

// =============================================================================
// Output naming
// =============================================================================

// mjdEpoch is MJD 0.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// OutnameData is the data an output name template sees.
type OutnameData struct {
	// Name is the source name, or the input base name without extension
	// when the archive has none.
	Name string

	// Date is the observation start date, yyyymmdd.
	Date string

	// Secs is the start time in seconds since midnight, five digits.
	Secs string

	// Base and Ext split the input file name.
	Base string
	Ext  string

	Source    string
	Telescope string
	Receiver  string
	Backend   string
	MJD       float64
}

// Outnamer renders output file names from a text/template.
type Outnamer struct {
	tmpl *template.Template
}

// NewOutnamer parses an output name template such as
// "{{.Name}}_{{.Date}}_{{.Secs}}_cleaned.cube".
func NewOutnamer(text string) (*Outnamer, error) {
	tmpl, err := template.New("outname").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse outname template: %w", err)
	}
	return &Outnamer{tmpl: tmpl}, nil
}

// Data builds the template data for an input file.
func Data(meta archive.Metadata, input string) OutnameData {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	day := math.Floor(meta.MJD)
	secs := int(math.Round((meta.MJD - day) * 86400))
	if secs >= 86400 {
		day++
		secs -= 86400
	}
	date := mjdEpoch.AddDate(0, 0, int(day))

	name := meta.Source
	if name == "" {
		name = stem
	}
	return OutnameData{
		Name:      name,
		Date:      date.Format("20060102"),
		Secs:      fmt.Sprintf("%05d", secs),
		Base:      stem,
		Ext:       ext,
		Source:    meta.Source,
		Telescope: meta.Telescope,
		Receiver:  meta.Receiver,
		Backend:   meta.Backend,
		MJD:       meta.MJD,
	}
}

// Render returns the output path for input. Relative names are placed in
// dir, or beside the input when dir is empty. A name that resolves to the
// input itself fails with ErrSameFile.
func (o *Outnamer) Render(meta archive.Metadata, input, dir string) (string, error) {
	var buf bytes.Buffer
	if err := o.tmpl.Execute(&buf, Data(meta, input)); err != nil {
		return "", fmt.Errorf("render outname: %w", err)
	}
	name := buf.String()
	if name == "" {
		return "", fmt.Errorf("outname template rendered an empty name for %s", input)
	}
	out := name
	if !filepath.IsAbs(name) {
		if dir == "" {
			dir = filepath.Dir(input)
		}
		out = filepath.Join(dir, name)
	}
	if samePath(out, input) {
		return "", fmt.Errorf("output name %s: %w", out, ErrSameFile)
	}
	return out, nil
}

// samePath reports whether a and b name the same file, comparing absolute
// cleaned paths and, when both exist, file identity.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}
