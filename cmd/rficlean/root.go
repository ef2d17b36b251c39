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
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rficlean/pkg/logging"
	"github.com/AleutianAI/rficlean/services/clean/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries global flags and the resources they create. One app serves
// one command execution.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	logDir      string
	logJSON     bool
	traceStdout bool

	logger        *logging.Logger
	traceShutdown func(context.Context) error
}

// execute runs the command line in args and releases the logger and
// tracer whether or not the command succeeded.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown(context.WithoutCancel(ctx)))
}

// newRootCmd builds the command tree.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rficlean",
		Short: "Remove radio-frequency interference from folded pulsar observations",
		Long: `rficlean zero-weights channels and sub-integrations contaminated by
radio-frequency interference and repairs isolated hot bins in folded
pulsar observations. Inputs are never modified: each file is copied to
its output name and the copy is cleaned.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&a.logDir, "log-dir", "", "also append JSON logs to a dated file in this directory")
	pf.BoolVar(&a.logJSON, "log-json", false, "write console logs as JSON")
	pf.BoolVar(&a.traceStdout, "trace-stdout", false, "export tracing spans as JSON to stderr")

	root.AddCommand(
		newCleanCmd(a),
		newWatchCmd(a),
		newStrategiesCmd(a),
		newInspectCmd(a),
		newSynthCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: logging.DefaultService,
		JSON:    a.logJSON,
		Output:  a.stderr,
	})
	if err := a.logger.FileError(); err != nil {
		a.logger.Warn("file logging disabled", slog.String("error", err.Error()))
	}
	if a.traceStdout {
		shutdown, err := initTracing(a.stderr, version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.traceShutdown = shutdown
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.traceShutdown != nil {
		errs = append(errs, a.traceShutdown(ctx))
		a.traceShutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// slog returns the logger handed to library packages.
func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger.Slog()
}

// loadConfig reads --config, or the built-in defaults.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(a.configPath)
}
