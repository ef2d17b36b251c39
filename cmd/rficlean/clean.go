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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/rficlean/services/clean/config"
	"github.com/AleutianAI/rficlean/services/clean/ledger"
	"github.com/AleutianAI/rficlean/services/clean/pipeline"
)

// batchFlags are the settings shared by clean and watch. Each one
// overrides the configuration file only when given on the command line.
type batchFlags struct {
	outname          string
	outDir           string
	nchanToTrim      int
	rcvrResponseLims []float64
	cleanStrategy    string
	strategyMatch    string
	chanThresh       float64
	subintThresh     float64
	binThresh        float64
	threshold        float64
	deweightTool     string
	pazPath          string
	jobs             int
	ledger           string
	metricsFile      string
}

func (b *batchFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&b.outname, "outname", "o", config.DefaultOutname,
		"output name template; fields: .Name .Source .Telescope .Receiver .Backend .Date .Secs .MJD .Base .Ext")
	fs.StringVar(&b.outDir, "outdir", "", "directory for relative output names (default: beside each input)")
	fs.IntVar(&b.nchanToTrim, "nchan-to-trim", 0, "zero-weight this many channels at each band edge")
	fs.Float64SliceVar(&b.rcvrResponseLims, "rcvr-response-lims", nil, "lo,hi in MHz; zero-weight channels outside the receiver response")
	fs.StringVar(&b.cleanStrategy, "clean-strategy", "clean_iterative", "strategy pattern; empty skips statistical cleaning")
	fs.StringVar(&b.strategyMatch, "strategy-match", "substring", "how the pattern selects a strategy: substring, exact or regexp")
	fs.Float64Var(&b.chanThresh, "chanthresh", 0, "channel score threshold for the single-pass strategy")
	fs.Float64Var(&b.subintThresh, "subintthresh", 0, "sub-integration score threshold for the single-pass strategy")
	fs.Float64Var(&b.binThresh, "binthresh", 0, "hot-bin score threshold")
	fs.Float64Var(&b.threshold, "threshold", 0, "score threshold for the iterative strategy")
	fs.StringVar(&b.deweightTool, "deweight-tool", config.ToolInternal, "how to zero-weight configured slices: internal, or paz for PSRCHIVE archives (not .cube containers)")
	fs.StringVar(&b.pazPath, "paz-path", "", "paz executable (default: paz on PATH)")
	fs.IntVarP(&b.jobs, "jobs", "j", 0, "files cleaned in parallel (default: number of CPUs)")
	fs.StringVar(&b.ledger, "ledger", "", "directory of the run ledger database")
	fs.StringVar(&b.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")
}

// apply copies every flag set on the command line into cfg.
func (b *batchFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("outname", func() { cfg.Outname = b.outname })
	set("nchan-to-trim", func() { cfg.NChanToTrim = b.nchanToTrim })
	set("rcvr-response-lims", func() { cfg.RcvrResponseLims = b.rcvrResponseLims })
	set("clean-strategy", func() { cfg.CleanStrategy = b.cleanStrategy })
	set("strategy-match", func() { cfg.StrategyMatch = b.strategyMatch })
	set("chanthresh", func() { cfg.ChanThresh = b.chanThresh })
	set("subintthresh", func() { cfg.SubintThresh = b.subintThresh })
	set("binthresh", func() { cfg.BinThresh = b.binThresh })
	set("threshold", func() { cfg.Threshold = b.threshold })
	set("deweight-tool", func() { cfg.DeweightTool = b.deweightTool })
	set("paz-path", func() { cfg.PazPath = b.pazPath })
	set("jobs", func() { cfg.Jobs = b.jobs })
	set("ledger", func() { cfg.Ledger = b.ledger })
	set("metrics-file", func() { cfg.MetricsFile = b.metricsFile })
}

// batchResources are opened from the configuration for one command.
type batchResources struct {
	runner  *pipeline.Runner
	ledger  *ledger.Ledger
	metrics *pipeline.Metrics
}

func (r *batchResources) close() error {
	if r.ledger == nil {
		return nil
	}
	return r.ledger.Close()
}

// openBatch loads the configuration, applies flags and builds a runner.
func (a *app) openBatch(cmd *cobra.Command, b *batchFlags, gcInterval time.Duration) (*config.Config, *batchResources, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	b.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	res := &batchResources{}
	if cfg.Ledger != "" {
		lcfg := ledger.DefaultConfig(cfg.Ledger)
		lcfg.Logger = a.slog()
		lcfg.GCInterval = gcInterval
		if res.ledger, err = ledger.Open(lcfg); err != nil {
			return nil, nil, err
		}
	}
	if cfg.MetricsFile != "" {
		res.metrics = pipeline.NewMetrics()
	}
	res.runner, err = pipeline.New(pipeline.Options{
		Config:  cfg,
		Logger:  a.slog(),
		Ledger:  res.ledger,
		Metrics: res.metrics,
		OutDir:  b.outDir,
	})
	if err != nil {
		res.close()
		return nil, nil, err
	}
	return cfg, res, nil
}

func newCleanCmd(a *app) *cobra.Command {
	var (
		flags        batchFlags
		globs        []string
		excludeFiles []string
		excludeGlobs []string
	)
	cmd := &cobra.Command{
		Use:   "clean [files...]",
		Short: "Clean archive files",
		Long: `Clean copies each input to its output name, zero-weights the configured
channels and sub-integrations, then runs the selected statistical
strategy on the copy. A failing file does not stop the batch; the
command exits non-zero when any file failed.`,
		Example: `  rficlean clean -c rficlean.yaml obs1.cube obs2.cube
  rficlean clean -g 'data/*.cube' -x data/bad.cube --nchan-to-trim 8
  rficlean clean --clean-strategy simple --strategy-match substring obs.cube`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := pipeline.Inputs{
				Files:        args,
				Globs:        globs,
				ExcludeFiles: excludeFiles,
				ExcludeGlobs: excludeGlobs,
			}.Resolve()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no input files; give file arguments or --glob")
			}
			return a.runClean(cmd, &flags, files)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringArrayVarP(&globs, "glob", "g", nil, "add files matching this glob (repeatable)")
	cmd.Flags().StringArrayVarP(&excludeFiles, "exclude-file", "x", nil, "skip this file (repeatable)")
	cmd.Flags().StringArrayVar(&excludeGlobs, "exclude-glob", nil, "skip files matching this glob (repeatable)")
	return cmd
}

func (a *app) runClean(cmd *cobra.Command, flags *batchFlags, files []string) (err error) {
	cfg, res, err := a.openBatch(cmd, flags, 0)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, res.close()) }()

	batch, runErr := res.runner.CleanAll(cmd.Context(), files)
	printBatch(newPrinter(a.stdout), batch, runErr)

	if res.metrics != nil {
		if werr := res.metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			a.slog().Warn("metrics textfile not written", slog.String("error", werr.Error()))
		}
	}
	return runErr
}

// printBatch renders one line per file and a summary box.
func printBatch(p *printer, batch *pipeline.Batch, err error) {
	for _, rep := range batch.Reports {
		p.success(fmt.Sprintf("%s %s %s", rep.File, iconArrow, rep.Output))
		fields := [][2]string{
			{"strategy", orDash(rep.Strategy)},
			{"deweighted", fmt.Sprintf("%d channels, %d subints", rep.DeweightedChannels, rep.DeweightedSubints)},
		}
		if rep.Clean != nil {
			fields = append(fields,
				[2]string{"channels", intList(rep.Clean.ExcludedChannels)},
				[2]string{"subints", intList(rep.Clean.ExcludedSubints)},
				[2]string{"hot bins", fmt.Sprint(rep.Clean.HotBins)},
			)
			if len(rep.Clean.Rounds) > 0 {
				fields = append(fields, [2]string{"rounds", roundsSummary(len(rep.Clean.Rounds), rep.Clean.Converged)})
			}
		}
		fields = append(fields, [2]string{"time", rep.Duration.Round(time.Millisecond).String()})
		p.fields(fields...)
	}

	var be *pipeline.BatchError
	if errors.As(err, &be) {
		for _, e := range be.Errors {
			p.failure(e.Error())
		}
	}

	summary := fmt.Sprintf("%d cleaned, %d failed", len(batch.Reports), batch.Failed)
	if err != nil && be == nil {
		summary += ": " + err.Error()
	}
	p.box("run "+batch.RunID, summary)
}

func roundsSummary(n int, converged bool) string {
	if converged {
		return fmt.Sprintf("%d (converged)", n)
	}
	return fmt.Sprintf("%d (stopped at limit)", n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
