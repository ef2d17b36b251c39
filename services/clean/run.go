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
	"time"

	"github.com/AleutianAI/rficlean/services/clean/cube"
)

// Run cleans one cube with the selected strategy.
//
// Description:
//
//	Validates params, checks that the mask fits the cube, and dispatches
//	to the strategy. The mask is only ever narrowed. The cube is modified
//	only by hot-bin repair.
//
// Inputs:
//   - id: Strategy to run. Must be in the closed set.
//   - c: Preprocessed data cube. Hot bins are repaired in place.
//   - m: Current weight mask. Exclusions are added in place.
//   - p: Parameters; see DefaultParams.
//   - logger: Destination for progress. Nil uses slog.Default().
//
// Outputs:
//   - *Report: What was changed. Non-nil when err is nil.
//   - error: *ConfigurationError for bad params, ErrUnknownStrategy, or
//     a wrapped stats.ErrInsufficientData when scoring runs out of data.
//
// Thread Safety: Requires exclusive access to c and m.
func Run(id StrategyID, c *cube.Cube, m *cube.Mask, p Params, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(id))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !m.Fits(c.Dims()) {
		return nil, fmt.Errorf("mask %dx%d does not fit cube %s", m.NSub(), m.NChan(), c.Dims())
	}

	logger = logger.With(slog.String("strategy", id.String()))
	start := time.Now()
	rep := &Report{Strategy: id, ExcludedChannels: []int{}, ExcludedSubints: []int{}, Converged: true}

	var err error
	switch id {
	case StrategySimple:
		err = runSimple(c, m, p, rep, logger)
	case StrategyIterative:
		err = runIterative(c, m, p, rep, logger)
	}
	rep.Duration = time.Since(start)
	if err != nil {
		return nil, err
	}

	logger.Info("cleaning finished", slog.Any("report", rep))
	return rep, nil
}
