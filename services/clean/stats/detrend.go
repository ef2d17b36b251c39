// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"fmt"

	mstats "github.com/montanaflynn/stats"
)

// RunningMedian returns, for every position, the median of the included
// samples inside a window centred on it.
//
// Description:
//
//	The window spans window/2 positions either side of i. Excluded samples
//	inside the window are skipped rather than replaced, so the window can
//	hold fewer than window+1 values near masked runs. A window of zero (or
//	one wide enough to cover everything) degenerates to the global median.
//	Excluded positions receive the median of their window too, so callers
//	can subtract the trend without special cases.
//
// Inputs:
//   - samples, weights: As for RobustStd.
//   - window: Full window width in positions. Must not be negative.
//
// Outputs:
//   - []float64: Trend values, one per sample.
//   - error: ErrInsufficientData when no sample is included at all.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func RunningMedian(samples []float64, weights []bool, window int) ([]float64, error) {
	if window < 0 {
		return nil, fmt.Errorf("running median window must not be negative, got %d", window)
	}
	if weights != nil && len(weights) != len(samples) {
		return nil, fmt.Errorf("%w: %d samples, %d weights", ErrLengthMismatch, len(samples), len(weights))
	}

	global, err := Median(samples, weights)
	if err != nil {
		return nil, err
	}

	trend := make([]float64, len(samples))
	if window == 0 || window >= 2*len(samples) {
		for i := range trend {
			trend[i] = global
		}
		return trend, nil
	}

	half := window / 2
	buf := make([]float64, 0, window+1)
	for i := range samples {
		lo := max(0, i-half)
		hi := min(len(samples)-1, i+half)
		buf = buf[:0]
		for j := lo; j <= hi; j++ {
			if weights == nil || weights[j] {
				buf = append(buf, samples[j])
			}
		}
		if len(buf) == 0 {
			// Entire window masked; fall back to the global level.
			trend[i] = global
			continue
		}
		trend[i], _ = mstats.Median(buf)
	}
	return trend, nil
}
