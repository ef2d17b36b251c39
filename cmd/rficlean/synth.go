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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rficlean/services/clean/archive"
)

func newSynthCmd(a *app) *cobra.Command {
	opts := archive.SynthOptions{
		Meta: archive.Metadata{
			Source:     "J0000+0000",
			Telescope:  "synthetic",
			MJD:        60000,
			CentreFreq: 1400,
			Bandwidth:  400,
			Period:     0.01,
			PolState:   archive.PolIntensity,
		},
		PulseAmp: 10,
		Seed:     1,
	}
	opts.Dims.NSub, opts.Dims.NChan, opts.Dims.NBin = 16, 64, 128

	cmd := &cobra.Command{
		Use:   "synth <file>",
		Short: "Write a synthetic observation with injected interference",
		Long: `Synth writes a noise cube with an optional dispersed pulse, noisy
channels and sub-integrations, and single-bin spikes. Useful for trying
configurations before running them on real data.`,
		Example: `  rficlean synth --bad-channels 5,17 --bad-subints 3 --spikes 20 test.cube`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := archive.Synthesize(args[0], opts)
			if err != nil {
				return err
			}
			if err := f.Unload(args[0]); err != nil {
				return err
			}
			a.slog().Debug("synthesized", slog.String("file", args[0]), slog.Any("dims", f.Dims()))
			d := f.Dims()
			newPrinter(a.stdout).success(fmt.Sprintf("wrote %s (%d subints x %d channels x %d bins)", args[0], d.NSub, d.NChan, d.NBin))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&opts.Dims.NSub, "nsub", opts.Dims.NSub, "sub-integrations")
	fs.IntVar(&opts.Dims.NChan, "nchan", opts.Dims.NChan, "channels")
	fs.IntVar(&opts.Dims.NBin, "nbin", opts.Dims.NBin, "phase bins")
	fs.StringVar(&opts.Meta.Source, "source", opts.Meta.Source, "source name")
	fs.StringVar(&opts.Meta.Telescope, "telescope", opts.Meta.Telescope, "telescope name")
	fs.StringVar(&opts.Meta.Receiver, "receiver", "", "receiver name")
	fs.StringVar(&opts.Meta.Backend, "backend", "", "backend name")
	fs.Float64Var(&opts.Meta.MJD, "mjd", opts.Meta.MJD, "start epoch (MJD)")
	fs.Float64Var(&opts.Meta.CentreFreq, "freq", opts.Meta.CentreFreq, "centre frequency (MHz)")
	fs.Float64Var(&opts.Meta.Bandwidth, "bw", opts.Meta.Bandwidth, "bandwidth (MHz); negative for an inverted band")
	fs.Float64Var(&opts.Meta.DM, "dm", 0, "dispersion measure (pc cm^-3)")
	fs.Float64Var(&opts.Meta.Period, "period", opts.Meta.Period, "pulse period (s)")
	fs.StringVar(&opts.Meta.PolState, "pol-state", opts.Meta.PolState, "Intensity, PPQQ or Coherence")
	fs.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	fs.Float64Var(&opts.Noise, "noise", 1, "noise sigma")
	fs.Float64Var(&opts.Offset, "offset", 0, "constant baseline")
	fs.Float64Var(&opts.PulseAmp, "pulse-amp", opts.PulseAmp, "pulse peak; 0 omits the pulse")
	fs.Float64Var(&opts.PulsePhase, "pulse-phase", 0.5, "pulse centre (turns)")
	fs.Float64Var(&opts.PulseWidth, "pulse-width", 0, "pulse sigma in bins (default nbin/64)")
	fs.IntSliceVar(&opts.BadChannels, "bad-channels", nil, "channels with raised noise")
	fs.IntSliceVar(&opts.BadSubints, "bad-subints", nil, "sub-integrations with raised noise")
	fs.Float64Var(&opts.BadGain, "bad-gain", 0, "noise multiplier for bad slices (default sqrt(10))")
	fs.IntVar(&opts.Spikes, "spikes", 0, "number of single-bin spikes")
	fs.Float64Var(&opts.SpikeAmp, "spike-amp", 50, "spike height")
	return cmd
}
