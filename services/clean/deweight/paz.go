// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deweight

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Paz renders plans into "paz -m" invocations, modifying the archive file
// in place.
type Paz struct {
	// Path is the paz executable. Empty means "paz" on PATH.
	Path string
}

func (p Paz) path() string {
	if p.Path == "" {
		return "paz"
	}
	return p.Path
}

// Args returns the paz arguments for plan applied to file. Each argument
// is passed to paz unsplit, so no shell quoting is involved.
func (p Paz) Args(file string, plan Plan) []string {
	args := []string{"-m"}
	if len(plan.Channels) > 0 {
		args = append(args, "-z", joinInts(plan.Channels))
	}
	for _, iv := range plan.ChannelIntervals {
		args = append(args, "-Z", fmt.Sprintf("%d %d", iv.Lo, iv.Hi))
	}
	if len(plan.Freqs) > 0 {
		fs := make([]string, len(plan.Freqs))
		for i, f := range plan.Freqs {
			fs[i] = strconv.FormatFloat(f, 'f', 6, 64)
		}
		args = append(args, "-f", strings.Join(fs, " "))
	}
	for _, iv := range plan.FreqIntervals {
		args = append(args, "-F", fmt.Sprintf("%f %f", iv.Lo, iv.Hi))
	}
	if len(plan.Subints) > 0 {
		args = append(args, "-w", joinInts(plan.Subints))
	}
	for _, iv := range plan.SubintIntervals {
		args = append(args, "-W", fmt.Sprintf("%d %d", iv.Lo, iv.Hi))
	}
	return append(args, file)
}

// Run executes paz for plan on file. An empty plan runs nothing.
//
// Outputs:
//   - error: Includes paz's combined output when it exits non-zero.
func (p Paz) Run(ctx context.Context, file string, plan Plan) error {
	if plan.Empty() {
		return nil
	}
	cmd := exec.CommandContext(ctx, p.path(), p.Args(file, plan)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("paz %s: %w: %s", file, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, " ")
}
