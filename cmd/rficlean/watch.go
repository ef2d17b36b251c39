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
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rficlean/services/clean/pipeline"
)

// watchGCInterval is the ledger value-log GC period for long-running
// watches.
const watchGCInterval = 10 * time.Minute

func newWatchCmd(a *app) *cobra.Command {
	var (
		flags    batchFlags
		pattern  string
		ignore   []string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Clean archive files as they arrive in a directory",
		Long: `Watch cleans each file matching --pattern once it has been quiet for
the debounce window. Files a run writes are never cleaned again, whatever
--outname makes of them. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, res, err := a.openBatch(cmd, &flags, watchGCInterval)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, res.close()) }()

			p := newPrinter(a.stdout)
			logger := a.slog()
			handler := func(ctx context.Context, paths []string) []string {
				batch, err := res.runner.CleanAll(ctx, paths)
				printBatch(p, batch, err)
				if res.metrics != nil {
					if werr := res.metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
						logger.Warn("metrics textfile not written", slog.String("error", werr.Error()))
					}
				}
				return batch.Written
			}

			opts := &pipeline.WatchOptions{
				Pattern:  pattern,
				Debounce: debounce,
				Logger:   logger,
			}
			if cmd.Flags().Changed("ignore") {
				opts.Ignore = ignore
			}
			w, err := pipeline.NewWatcher(args[0], handler, opts)
			if err != nil {
				return err
			}
			logger.Info("watching", slog.String("dir", args[0]), slog.String("pattern", pattern))
			return w.Run(cmd.Context())
		},
	}
	flags.register(cmd.Flags())
	defaults := pipeline.DefaultWatchOptions()
	cmd.Flags().StringVar(&pattern, "pattern", defaults.Pattern, "base-name glob of files to clean")
	cmd.Flags().StringArrayVar(&ignore, "ignore", defaults.Ignore, "base-name globs never cleaned (repeatable)")
	cmd.Flags().DurationVar(&debounce, "debounce", defaults.Debounce, "quiet period before a file is cleaned")
	return cmd
}
