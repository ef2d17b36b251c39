// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, shared with the other Aleutian command line tools.
var (
	colorTeal    = lipgloss.Color("#2CD7C7")
	colorPrimary = lipgloss.Color("#20B9B4")
	colorDeep    = lipgloss.Color("#16858E")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

// Icons
const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconArrow   = "→"
)

// styles holds the lipgloss styles for one output stream. Every style is
// plain when the stream is not a terminal.
type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}

func newStyles(colour bool) styles {
	if !colour {
		plain := lipgloss.NewStyle()
		return styles{
			Title: plain, Label: plain, Muted: plain,
			Success: plain, Warning: plain, Error: plain,
			Box: plain,
		}
	}
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
		Label:   lipgloss.NewStyle().Foreground(colorPrimary),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Success: lipgloss.NewStyle().Foreground(colorTeal),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
		Error:   lipgloss.NewStyle().Foreground(colorError),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDeep).
			Padding(0, 1),
	}
}

// isTerminal reports whether w is a terminal. NO_COLOR disables colour
// everywhere.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printer writes human-readable command output.
type printer struct {
	w io.Writer
	s styles
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, s: newStyles(isTerminal(w))}
}

func (p *printer) title(text string) {
	fmt.Fprintln(p.w, p.s.Title.Render(text))
}

func (p *printer) success(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.s.Success.Render(iconSuccess), text)
}

func (p *printer) failure(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.s.Error.Render(iconError), p.s.Error.Render(text))
}

func (p *printer) warning(text string) {
	fmt.Fprintln(p.w, p.s.Warning.Render(text))
}

func (p *printer) muted(text string) {
	fmt.Fprintln(p.w, p.s.Muted.Render(text))
}

// fields prints aligned "label: value" lines.
func (p *printer) fields(pairs ...[2]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, len(kv[0]))
	}
	for _, kv := range pairs {
		label := kv[0] + ":" + strings.Repeat(" ", width-len(kv[0]))
		fmt.Fprintf(p.w, "  %s %s\n", p.s.Label.Render(label), kv[1])
	}
}

// box prints lines inside a rounded border.
func (p *printer) box(lines ...string) {
	fmt.Fprintln(p.w, p.s.Box.Render(strings.Join(lines, "\n")))
}

// intList renders indices compactly, "-" when empty.
func intList(xs []int) string {
	if len(xs) == 0 {
		return "-"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}
