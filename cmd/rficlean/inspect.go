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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rficlean/services/clean"
	"github.com/AleutianAI/rficlean/services/clean/archive"
)

func newStrategiesCmd(a *app) *cobra.Command {
	var pattern, match string
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List cleaning strategies, or test which one a pattern selects",
		Example: `  rficlean strategies
  rficlean strategies --pattern iter`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(a.stdout)
			if !cmd.Flags().Changed("pattern") {
				for _, id := range clean.Strategies() {
					fmt.Fprintln(a.stdout, id.String())
				}
				return nil
			}
			mode, err := clean.ParseMatchMode(match)
			if err != nil {
				return err
			}
			id, err := clean.Select(pattern, mode)
			if err != nil {
				return err
			}
			p.success(fmt.Sprintf("%q selects %s", pattern, id))
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "pattern to resolve")
	cmd.Flags().StringVar(&match, "strategy-match", "substring", "substring, exact or regexp")
	return cmd
}

// inspection is the machine-readable form of inspect.
type inspection struct {
	File             string           `json:"file"`
	Metadata         archive.Metadata `json:"metadata"`
	NPol             int              `json:"npol"`
	NSub             int              `json:"nsub"`
	NChan            int              `json:"nchan"`
	NBin             int              `json:"nbin"`
	ExcludedChannels []int            `json:"excluded_channels"`
	ExcludedSubints  []int            `json:"excluded_subints"`
	LowFreq          float64          `json:"low_freq_mhz"`
	HighFreq         float64          `json:"high_freq_mhz"`
}

func newInspectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show an archive's metadata, dimensions and weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := archive.Load(args[0])
			if err != nil {
				return err
			}
			info := inspect(args[0], f)
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInspection(newPrinter(a.stdout), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func inspect(path string, f *archive.File) inspection {
	d := f.Dims()
	info := inspection{
		File:             path,
		Metadata:         f.Metadata(),
		NPol:             f.NPol(),
		NSub:             d.NSub,
		NChan:            d.NChan,
		NBin:             d.NBin,
		ExcludedChannels: f.Mask().ExcludedChannels(),
		ExcludedSubints:  f.Mask().ExcludedSubints(),
	}
	if freqs := f.ChannelFrequencies(); len(freqs) > 0 {
		info.LowFreq, info.HighFreq = freqs[0], freqs[0]
		for _, fr := range freqs[1:] {
			info.LowFreq = min(info.LowFreq, fr)
			info.HighFreq = max(info.HighFreq, fr)
		}
	}
	return info
}

func printInspection(p *printer, info inspection) {
	m := info.Metadata
	p.title(info.File)
	p.fields(
		[2]string{"source", orDash(m.Source)},
		[2]string{"telescope", orDash(m.Telescope)},
		[2]string{"receiver", orDash(m.Receiver)},
		[2]string{"backend", orDash(m.Backend)},
		[2]string{"mjd", fmt.Sprintf("%.6f", m.MJD)},
		[2]string{"band", fmt.Sprintf("%.3f MHz, bw %.3f MHz (%.3f-%.3f)", m.CentreFreq, m.Bandwidth, info.LowFreq, info.HighFreq)},
		[2]string{"dm", fmt.Sprintf("%g", m.DM)},
		[2]string{"period", fmt.Sprintf("%g s", m.Period)},
		[2]string{"pol", fmt.Sprintf("%s (%d)", m.PolState, info.NPol)},
		[2]string{"dims", fmt.Sprintf("%d subints x %d channels x %d bins", info.NSub, info.NChan, info.NBin)},
		[2]string{"flags", fmt.Sprintf("dedispersed=%t baseline_removed=%t", m.Dedispersed, m.BaselineRemoved)},
		[2]string{"excl. channels", intList(info.ExcludedChannels)},
		[2]string{"excl. subints", intList(info.ExcludedSubints)},
	)
}
