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
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned when a StrategyID is outside the closed
// set.
var ErrUnknownStrategy = errors.New("unknown cleaning strategy")

// StrategySelectionError reports a strategy pattern that did not resolve to
// exactly one strategy.
type StrategySelectionError struct {
	// Pattern is the requested name or pattern.
	Pattern string

	// Mode is the matching mode used.
	Mode MatchMode

	// Matches lists every strategy name the pattern matched.
	Matches []string
}

func (e *StrategySelectionError) Error() string {
	return fmt.Sprintf("bad cleaner selection: '%s' has %d matches", e.Pattern, len(e.Matches))
}

// Candidates lists the matched names, comma separated, for diagnostics.
func (e *StrategySelectionError) Candidates() string {
	return strings.Join(e.Matches, ", ")
}

// ConfigurationError reports a parameter outside its valid range.
type ConfigurationError struct {
	// Field names the offending parameter as it appears in configuration.
	Field string

	// Value is the rejected value.
	Value any

	// Reason says what range was expected.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}
