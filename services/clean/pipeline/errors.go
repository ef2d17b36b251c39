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
	"fmt"
	"strings"
)

// Stage names one step of cleaning a file.
type Stage string

// Stages in execution order.
const (
	StageLoad       Stage = "load"
	StageSelect     Stage = "select"
	StageCopy       Stage = "copy"
	StageDeweight   Stage = "deweight"
	StagePreprocess Stage = "preprocess"
	StageClean      Stage = "clean"
	StageUnload     Stage = "unload"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageLoad, StageSelect, StageCopy, StageDeweight, StagePreprocess, StageClean, StageUnload}
}

// FileError is a failure while cleaning one file.
//
// Unwrap exposes the cause, so errors.Is and errors.As see through it to
// stats.ErrInsufficientData or *clean.StrategySelectionError.
type FileError struct {
	File  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// BatchError aggregates per-file failures of one batch. Files that
// succeeded are not represented.
//
// BatchError implements the Go 1.20+ multi-error Unwrap.
type BatchError struct {
	// Errors holds one *FileError per failed file, in input order.
	Errors []error
}

// Error returns a summary.
//
// Format depends on error count:
//   - 1 error: that error's message
//   - 2+ errors: count and first error with "and N more" suffix
func (e *BatchError) Error() string {
	if len(e.Errors) == 0 {
		return "batch error with no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed: %v (and %d more)",
		len(e.Errors), e.Errors[0], len(e.Errors)-1)
}

// Unwrap returns the per-file errors for errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errors
}

// ErrorList returns every error, one per line.
func (e *BatchError) ErrorList() string {
	var b strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}
