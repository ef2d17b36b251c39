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
	"log/slog"
	"time"
)

// Round records one iteration of the iterative strategy.
type Round struct {
	// Round is 1-based.
	Round int `json:"round"`

	// WorstChannel and ChannelScore describe the highest channel score;
	// WorstChannel is -1 when no channel could be scored.
	WorstChannel int     `json:"worst_channel"`
	ChannelScore float64 `json:"channel_score"`

	// WorstSubint and SubintScore describe the highest sub-integration
	// score.
	WorstSubint int     `json:"worst_subint"`
	SubintScore float64 `json:"subint_score"`

	// Action is "channel", "subint" or "stop".
	Action string `json:"action"`

	// Index is the excluded slice, or -1 on stop.
	Index int `json:"index"`

	// CountExcluded is the mask's exclusion count after the round.
	CountExcluded int `json:"count_excluded"`
}

// Report summarises what a strategy changed.
type Report struct {
	Strategy StrategyID `json:"-"`

	// ExcludedChannels and ExcludedSubints list slices newly excluded by
	// this run, in the order they were excluded.
	ExcludedChannels []int `json:"excluded_channels"`
	ExcludedSubints  []int `json:"excluded_subints"`

	// HotBins counts repaired bins; SeriesRepaired counts series that
	// had at least one.
	HotBins        int `json:"hot_bins"`
	SeriesRepaired int `json:"series_repaired"`

	// Rounds is the iterative trace. Empty for the single-pass sweep.
	Rounds []Round `json:"rounds,omitempty"`

	// Converged is false only when the iterative loop hit MaxRounds.
	Converged bool `json:"converged"`

	Duration time.Duration `json:"duration"`
}

// StrategyName returns the strategy's configuration name.
func (r *Report) StrategyName() string {
	return r.Strategy.String()
}

// LogValue lets a Report be logged as a group.
func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("strategy", r.Strategy.String()),
		slog.Int("channels", len(r.ExcludedChannels)),
		slog.Int("subints", len(r.ExcludedSubints)),
		slog.Int("hot_bins", r.HotBins),
		slog.Int("rounds", len(r.Rounds)),
		slog.Bool("converged", r.Converged),
		slog.Duration("duration", r.Duration),
	)
}
