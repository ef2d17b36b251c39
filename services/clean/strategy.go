// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clean implements the RFI cleaning strategies.
//
// Two strategies form a closed set. StrategySimple sweeps channels, then
// sub-integrations, then hot bins, once. StrategyIterative masks the single
// worst channel or sub-integration per round until nothing exceeds the
// threshold. Both mutate a cube.Mask monotonically and report what they
// changed.
//
// # Thread Safety
//
// Run is synchronous and owns the cube and mask for its duration. Separate
// files may be cleaned concurrently with separate cubes and masks.
package clean

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Strategy identifiers
// =============================================================================

// StrategyID enumerates the available strategies.
type StrategyID int

const (
	// StrategySimple is the single-pass channel, sub-integration and hot-bin
	// sweep.
	StrategySimple StrategyID = iota + 1

	// StrategyIterative greedily excludes the worst slice per round.
	StrategyIterative
)

// strategyNames maps identifiers to their configuration names.
var strategyNames = map[StrategyID]string{
	StrategySimple:    "clean_simple",
	StrategyIterative: "clean_iterative",
}

// String returns the configuration name of the strategy.
func (id StrategyID) String() string {
	if name, ok := strategyNames[id]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(id))
}

// Valid reports whether id is in the closed set.
func (id StrategyID) Valid() bool {
	_, ok := strategyNames[id]
	return ok
}

// Strategies returns every strategy in identifier order.
func Strategies() []StrategyID {
	return []StrategyID{StrategySimple, StrategyIterative}
}

// =============================================================================
// Selection
// =============================================================================

// MatchMode controls how a pattern is compared with strategy names.
type MatchMode int

const (
	// MatchSubstring selects strategies whose name contains the pattern.
	MatchSubstring MatchMode = iota

	// MatchExact selects the strategy whose name equals the pattern.
	MatchExact

	// MatchRegexp selects strategies whose name matches the pattern as a
	// regular expression.
	MatchRegexp
)

func (m MatchMode) String() string {
	switch m {
	case MatchSubstring:
		return "substring"
	case MatchExact:
		return "exact"
	case MatchRegexp:
		return "regexp"
	default:
		return fmt.Sprintf("match(%d)", int(m))
	}
}

// ParseMatchMode parses a configuration name. The empty string selects
// MatchSubstring.
func ParseMatchMode(name string) (MatchMode, error) {
	switch name {
	case "", "substring":
		return MatchSubstring, nil
	case "exact":
		return MatchExact, nil
	case "regexp":
		return MatchRegexp, nil
	default:
		return MatchSubstring, &ConfigurationError{Field: "strategy_match", Value: name, Reason: "must be substring, exact or regexp"}
	}
}

// Select resolves a pattern to exactly one strategy.
//
// Description:
//
//	Every strategy name is tested against pattern under mode. Selection
//	succeeds only when exactly one name matches; "clean" under
//	MatchSubstring matches both strategies and is rejected.
//
// Inputs:
//   - pattern: Name or pattern to resolve.
//   - mode: How to compare.
//
// Outputs:
//   - StrategyID: The selected strategy.
//   - error: *StrategySelectionError for zero or several matches,
//     *ConfigurationError for an invalid regular expression.
//
// Thread Safety: Safe for concurrent use.
func Select(pattern string, mode MatchMode) (StrategyID, error) {
	var match func(string) bool
	switch mode {
	case MatchExact:
		match = func(name string) bool { return name == pattern }
	case MatchRegexp:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return 0, &ConfigurationError{Field: "clean_strategy", Value: pattern, Reason: err.Error()}
		}
		match = re.MatchString
	default:
		match = func(name string) bool { return strings.Contains(name, pattern) }
	}

	var found []StrategyID
	var names []string
	for _, id := range Strategies() {
		if match(id.String()) {
			found = append(found, id)
			names = append(names, id.String())
		}
	}
	if len(found) != 1 {
		return 0, &StrategySelectionError{Pattern: pattern, Mode: mode, Matches: names}
	}
	return found[0], nil
}
