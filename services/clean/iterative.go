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

	"github.com/AleutianAI/rficlean/services/clean/cube"
	"github.com/AleutianAI/rficlean/services/clean/profile"
	"github.com/AleutianAI/rficlean/services/clean/score"
)

// runIterative excludes the single worst slice per round until neither the
// worst channel nor the worst sub-integration exceeds p.Threshold.
//
// Every round rescores from scratch because each exclusion changes the
// profile and therefore every residual. When the worst channel and worst
// sub-integration score equally the channel is excluded. Each non-final
// round adds one exclusion, so the loop runs at most nchan + nsub rounds.
func runIterative(c *cube.Cube, m *cube.Mask, p Params, rep *Report, logger *slog.Logger) error {
	d := c.Dims()
	limit := d.NChan + d.NSub
	if p.MaxRounds > 0 && p.MaxRounds < limit {
		limit = p.MaxRounds
	}
	opts := p.scoreOptions()

	for round := 1; ; round++ {
		res := profile.Remove(c, m)
		chans, err := score.Score(res.Residual, m, score.AxisChannel, score.StatStd, opts)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		subs, err := score.Score(res.Residual, m, score.AxisSubint, score.StatStd, opts)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}

		ci, cs, cok := chans.Worst()
		si, ss, sok := subs.Worst()
		r := Round{Round: round, WorstChannel: ci, ChannelScore: cs, WorstSubint: si, SubintScore: ss, Index: -1}

		chanBad := cok && cs > p.Threshold
		subBad := sok && ss > p.Threshold
		switch {
		case chanBad && (!subBad || cs >= ss):
			if err := m.ExcludeChannel(ci); err != nil {
				return err
			}
			r.Action, r.Index = "channel", ci
			rep.ExcludedChannels = append(rep.ExcludedChannels, ci)
		case subBad:
			if err := m.ExcludeSubint(si); err != nil {
				return err
			}
			r.Action, r.Index = "subint", si
			rep.ExcludedSubints = append(rep.ExcludedSubints, si)
		default:
			r.Action = "stop"
		}
		r.CountExcluded = m.CountExcluded()
		rep.Rounds = append(rep.Rounds, r)

		logger.Debug("iterative round",
			slog.Int("round", round),
			slog.String("action", r.Action),
			slog.Int("index", r.Index),
			slog.Float64("channel_score", cs),
			slog.Float64("subint_score", ss),
			slog.Int("count_excluded", r.CountExcluded),
		)

		if r.Action == "stop" {
			return nil
		}
		if round >= limit {
			rep.Converged = false
			logger.Warn("iterative cleaning stopped before converging", slog.Int("rounds", round))
			return nil
		}
	}
}
