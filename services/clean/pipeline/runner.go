// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline cleans batches of archive files.
//
// Each file goes through the stages load, select, copy, deweight,
// preprocess, clean and unload. The input is never modified: it is copied
// to the output name first and every later stage works on the copy.
// Preprocessing and scoring run on an in-memory clone, so the output
// keeps the input's polarisation products and baseline and differs from
// it only by zero weights and repaired hot bins. A
// failing file becomes a *FileError naming the stage; the batch carries on
// with the remaining files and reports all failures in a *BatchError.
//
// Files are processed in parallel up to the configured job count. Each
// worker owns its archive, cube and mask, so no state is shared between
// files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/rficlean/services/clean"
	"github.com/AleutianAI/rficlean/services/clean/archive"
	"github.com/AleutianAI/rficlean/services/clean/config"
	"github.com/AleutianAI/rficlean/services/clean/deweight"
	"github.com/AleutianAI/rficlean/services/clean/ledger"
)

// Loader opens an archive file.
type Loader func(path string) (archive.Archive, error)

// LoadFile opens the .cube container.
func LoadFile(path string) (archive.Archive, error) {
	return archive.Load(path)
}

// Options configures a Runner.
type Options struct {
	// Config is the base configuration. Required.
	Config *config.Config

	// Logger receives progress. Nil discards.
	Logger *slog.Logger

	// Ledger, when set, records every file outcome.
	Ledger *ledger.Ledger

	// Metrics, when set, counts outcomes.
	Metrics *Metrics

	// OutDir receives relative output names. Empty writes beside each
	// input.
	OutDir string

	// Loader opens archives. Nil uses LoadFile.
	Loader Loader
}

// FileReport is the outcome of cleaning one file.
type FileReport struct {
	RunID  string
	File   string
	Output string

	// Strategy is empty when the statistical stage was skipped.
	Strategy string

	// DeweightedChannels and DeweightedSubints count slices newly
	// excluded by the deweight stage.
	DeweightedChannels int
	DeweightedSubints  int

	// Clean is nil when the statistical stage was skipped.
	Clean *clean.Report

	Duration time.Duration
}

// LogValue lets a FileReport be logged as a group.
func (r *FileReport) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("output", r.Output),
		slog.Int("deweighted_channels", r.DeweightedChannels),
		slog.Int("deweighted_subints", r.DeweightedSubints),
		slog.Duration("duration", r.Duration),
	}
	if r.Clean != nil {
		attrs = append(attrs, slog.Any("clean", r.Clean))
	}
	return slog.GroupValue(attrs...)
}

// Batch is the outcome of CleanAll.
type Batch struct {
	RunID string

	// Reports holds successful files in input order.
	Reports []*FileReport

	// Failed counts files that failed.
	Failed int

	// Written lists every output path the batch wrote or started to
	// write, including those of failed files, in input order.
	Written []string
}

// Runner cleans files.
//
// Thread Safety: Safe for concurrent use; CleanFile calls share nothing
// but the ledger and metrics, which are themselves safe.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	ledger  *ledger.Ledger
	metrics *Metrics
	outDir  string
	load    Loader
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if _, err := NewOutnamer(opts.Config.Outname); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	load := opts.Loader
	if load == nil {
		load = LoadFile
	}
	return &Runner{
		cfg:     opts.Config,
		logger:  logger,
		ledger:  opts.Ledger,
		metrics: opts.Metrics,
		outDir:  opts.OutDir,
		load:    load,
	}, nil
}

// Jobs returns the effective parallelism.
func (r *Runner) Jobs() int {
	if r.cfg.Jobs > 0 {
		return r.cfg.Jobs
	}
	return runtime.NumCPU()
}

// CleanAll cleans every path under one new run ID.
//
// Outputs:
//   - *Batch: Always non-nil.
//   - error: *BatchError listing each failed file, or nil.
func (r *Runner) CleanAll(ctx context.Context, paths []string) (*Batch, error) {
	runID := uuid.NewString()
	r.logger.Info("batch started", slog.String("run_id", runID), slog.Int("files", len(paths)), slog.Int("jobs", r.Jobs()))

	reports := make([]*FileReport, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(r.Jobs())
	for i, path := range paths {
		g.Go(func() error {
			reports[i], errs[i] = r.cleanFile(ctx, runID, path)
			return nil
		})
	}
	_ = g.Wait()

	batch := &Batch{RunID: runID, Reports: []*FileReport{}, Written: []string{}}
	var failed []error
	for i := range paths {
		if reports[i].Output != "" {
			batch.Written = append(batch.Written, reports[i].Output)
		}
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		batch.Reports = append(batch.Reports, reports[i])
	}
	batch.Failed = len(failed)
	r.logger.Info("batch finished", slog.String("run_id", runID),
		slog.Int("cleaned", len(batch.Reports)), slog.Int("failed", batch.Failed))

	if len(failed) > 0 {
		return batch, &BatchError{Errors: failed}
	}
	return batch, nil
}

// CleanFile runs every stage on one file.
//
// Description:
//
//	Loads the archive, resolves its configuration and strategy, copies
//	it to the output name, zero-weights the configured slices,
//	preprocesses, runs the statistical strategy and writes the result.
//	Cancellation is checked before each stage. When a stage after the
//	copy fails, the partial output is removed.
//
// Outputs:
//   - *FileReport: Non-nil when err is nil.
//   - error: *FileError naming the failed stage.
func (r *Runner) CleanFile(ctx context.Context, runID, path string) (*FileReport, error) {
	rep, err := r.cleanFile(ctx, runID, path)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// cleanFile is CleanFile, returning the report even on failure so that
// CleanAll can list the output path.
func (r *Runner) cleanFile(ctx context.Context, runID, path string) (rep *FileReport, err error) {
	start := time.Now()
	ctx, span := startFileSpan(ctx, runID, path)
	logger := r.logger.With(slog.String("file", path))
	rep = &FileReport{RunID: runID, File: path}
	copied := false

	defer func() {
		rep.Duration = time.Since(start)
		if err != nil && copied {
			if rerr := os.Remove(rep.Output); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				logger.Warn("partial output not removed", slog.String("output", rep.Output), slog.String("error", rerr.Error()))
			}
		}
		endSpan(span, err)
		r.metrics.observeFile(rep, err)
		r.record(ctx, start, rep, err)
		if err != nil {
			logger.Error("file failed", slog.String("error", err.Error()))
		} else {
			logger.Info("file cleaned", slog.Any("report", rep))
		}
	}()

	var (
		a   archive.Archive
		cfg *config.Config
		id  clean.StrategyID
	)

	err = r.stage(ctx, path, StageLoad, func(context.Context) error {
		var err error
		a, err = r.load(path)
		return err
	})
	if err != nil {
		return rep, err
	}

	err = r.stage(ctx, path, StageSelect, func(context.Context) error {
		var err error
		if cfg, err = r.cfg.ForArchive(a.Metadata(), path); err != nil {
			return err
		}
		if cfg.CleanStrategy == "" {
			return nil
		}
		if id, err = cfg.Strategy(); err != nil {
			return err
		}
		rep.Strategy = id.String()
		return nil
	})
	if err != nil {
		return rep, err
	}

	err = r.stage(ctx, path, StageCopy, func(context.Context) error {
		namer, err := NewOutnamer(cfg.Outname)
		if err != nil {
			return err
		}
		if rep.Output, err = namer.Render(a.Metadata(), path, r.outDir); err != nil {
			return err
		}
		if err := copyFile(path, rep.Output); err != nil {
			return err
		}
		copied = true
		return nil
	})
	if err != nil {
		return rep, err
	}

	err = r.stage(ctx, path, StageDeweight, func(ctx context.Context) error {
		plan, err := cfg.Plan(a.Metadata(), a.Dims().NChan)
		if err != nil {
			return err
		}
		chans, subs := len(a.Mask().ExcludedChannels()), len(a.Mask().ExcludedSubints())
		switch cfg.DeweightTool {
		case config.ToolPaz:
			container, err := archive.IsContainer(rep.Output)
			if err != nil {
				return err
			}
			if container {
				return &clean.ConfigurationError{Field: "deweight_tool", Value: cfg.DeweightTool,
					Reason: "paz needs a PSRCHIVE archive and cannot read .cube containers; use internal"}
			}
			if err := (deweight.Paz{Path: cfg.PazPath}).Run(ctx, rep.Output, plan); err != nil {
				return err
			}
			if a, err = r.load(rep.Output); err != nil {
				return fmt.Errorf("reload after paz: %w", err)
			}
		default:
			if _, err := deweight.Apply(a.Mask(), a.ChannelFrequencies(), plan); err != nil {
				return err
			}
		}
		rep.DeweightedChannels = len(a.Mask().ExcludedChannels()) - chans
		rep.DeweightedSubints = len(a.Mask().ExcludedSubints()) - subs
		return nil
	})
	if err != nil {
		return rep, err
	}

	// Scoring sees a scrunched, baselined copy; the output keeps the
	// input's products and only gains exclusions and hot-bin repairs.
	var work archive.Archive
	err = r.stage(ctx, path, StagePreprocess, func(context.Context) error {
		work = a.Clone()
		if err := work.PScrunch(); err != nil {
			return err
		}
		if cfg.RemoveBaseline {
			if err := work.RemoveBaseline(); err != nil {
				return err
			}
		}
		if cfg.Dedisperse {
			return work.Dedisperse()
		}
		return nil
	})
	if err != nil {
		return rep, err
	}

	if rep.Strategy != "" {
		err = r.stage(ctx, path, StageClean, func(context.Context) error {
			c, err := work.Cube()
			if err != nil {
				return err
			}
			before := c.Clone()
			if rep.Clean, err = clean.Run(id, c, work.Mask(), cfg.Params(), logger); err != nil {
				return err
			}
			return a.Merge(work, before)
		})
		if err != nil {
			return rep, err
		}
	}

	err = r.stage(ctx, path, StageUnload, func(context.Context) error {
		return a.Unload(rep.Output)
	})
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// stage runs fn as one traced, timed stage and wraps its error.
func (r *Runner) stage(ctx context.Context, file string, s Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &FileError{File: file, Stage: s, Err: err}
	}
	sctx, span := startStageSpan(ctx, s)
	t := time.Now()
	err := fn(sctx)
	r.metrics.observeStage(s, time.Since(t))
	endSpan(span, err)
	if err != nil {
		return &FileError{File: file, Stage: s, Err: err}
	}
	return nil
}

func (r *Runner) record(ctx context.Context, start time.Time, rep *FileReport, err error) {
	if r.ledger == nil {
		return
	}
	rec := ledger.Record{
		RunID:            rep.RunID,
		File:             rep.File,
		Output:           rep.Output,
		Strategy:         rep.Strategy,
		Deweighted:       rep.DeweightedChannels + rep.DeweightedSubints,
		ExcludedChannels: []int{},
		ExcludedSubints:  []int{},
		Converged:        true,
		Started:          start,
		Duration:         rep.Duration,
	}
	if rep.Clean != nil {
		rec.ExcludedChannels = rep.Clean.ExcludedChannels
		rec.ExcludedSubints = rep.Clean.ExcludedSubints
		rec.HotBins = rep.Clean.HotBins
		rec.Rounds = len(rep.Clean.Rounds)
		rec.Converged = rep.Clean.Converged
	}
	if err != nil {
		rec.Error = err.Error()
		var fe *FileError
		if errors.As(err, &fe) {
			rec.Stage = string(fe.Stage)
		}
	}
	if _, lerr := r.ledger.Append(context.WithoutCancel(ctx), rec); lerr != nil {
		r.logger.Warn("ledger append failed", slog.String("file", rep.File), slog.String("error", lerr.Error()))
	}
}

// ErrSameFile indicates an output path that names the input file.
var ErrSameFile = errors.New("output would overwrite the input")

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if dstInfo, serr := os.Stat(dst); serr == nil {
		srcInfo, err := in.Stat()
		if err != nil {
			return err
		}
		if os.SameFile(srcInfo, dstInfo) {
			return fmt.Errorf("copy %s to %s: %w", src, dst, ErrSameFile)
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
