// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clean

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/hotbin"
	"github.com/AleutianAI/rficlean/services/clean/profile"
	"github.com/AleutianAI/rficlean/services/clean/score"
)

// runSimple is the single-pass sweep: channels, then sub-integrations, then
// hot bins. Each stage sees the mask left by the previous one.
func runSimple(c *cube.Cube, m *cube.Mask, p Params, rep *Report, logger *slog.Logger) error {
	opts := p.scoreOptions()

	// Channels.
	bad, err := sweep(c, m, score.AxisChannel, p.ChanThresh, opts)
	if err != nil {
		return err
	}
	for _, ichan := range bad {
		if err := m.ExcludeChannel(ichan); err != nil {
			return err
		}
	}
	rep.ExcludedChannels = append(rep.ExcludedChannels, bad...)
	logger.Debug("channel sweep done", slog.Any("excluded", bad))

	// Sub-integrations, rescored against the narrowed channel set.
	bad, err = sweep(c, m, score.AxisSubint, p.SubintThresh, opts)
	if err != nil {
		return err
	}
	for _, isub := range bad {
		if err := m.ExcludeSubint(isub); err != nil {
			return err
		}
	}
	rep.ExcludedSubints = append(rep.ExcludedSubints, bad...)
	logger.Debug("subint sweep done", slog.Any("excluded", bad))

	// Hot bins on what remains.
	res := profile.Remove(c, m)
	hb, err := hotbin.Clean(c, res.Residual, m, p.hotbinOptions())
	if err != nil {
		return fmt.Errorf("hot bins: %w", err)
	}
	rep.HotBins = hb.Repaired
	rep.SeriesRepaired = hb.SeriesTouched
	logger.Debug("hot-bin repair done", slog.Int("bins", hb.Repaired), slog.Int("series", hb.SeriesTouched))
	return nil
}

// sweep removes the profile, scores one axis with both statistics and
// returns the union of slices strictly above thr, ascending.
func sweep(c *cube.Cube, m *cube.Mask, axis score.Axis, thr float64, opts score.Options) ([]int, error) {
	res := profile.Remove(c, m)

	union := map[int]struct{}{}
	for _, st := range []score.Statistic{score.StatMean, score.StatStd} {
		v, err := score.Score(res.Residual, m, axis, st, opts)
		if err != nil {
			return nil, fmt.Errorf("%s sweep: %w", axis, err)
		}
		for _, i := range v.Exceeding(thr) {
			union[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(union))
	for i := range union {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}
