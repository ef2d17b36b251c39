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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rficlean/services/clean/ledger"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		path   string
		filter ledger.Filter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded cleaning outcomes from the run ledger",
		Example: `  rficlean history --ledger ~/.rficlean/ledger --failed
  rficlean history -c rficlean.yaml --run 6f1c... --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !cmd.Flags().Changed("ledger") {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Ledger
			}
			if path == "" {
				return errors.New("no ledger; set --ledger or 'ledger' in the configuration")
			}

			lcfg := ledger.DefaultConfig(path)
			lcfg.Logger = a.slog()
			l, err := ledger.Open(lcfg)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, l.Close()) }()

			recs, err := l.History(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			printHistory(newPrinter(a.stdout), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "ledger", "", "ledger directory (default: from the configuration)")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "only this run ID")
	cmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "only failed files")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "only the most recent n records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printHistory(p *printer, recs []ledger.Record) {
	if len(recs) == 0 {
		p.muted("no records")
		return
	}
	for _, r := range recs {
		head := fmt.Sprintf("%s %s", r.Started.Format(time.DateTime), r.File)
		if r.Failed() {
			p.failure(head)
			p.fields(
				[2]string{"run", r.RunID},
				[2]string{"stage", r.Stage},
				[2]string{"error", r.Error},
			)
			continue
		}
		p.success(head)
		p.fields(
			[2]string{"run", r.RunID},
			[2]string{"output", r.Output},
			[2]string{"strategy", orDash(r.Strategy)},
			[2]string{"deweighted", fmt.Sprint(r.Deweighted)},
			[2]string{"channels", intList(r.ExcludedChannels)},
			[2]string{"subints", intList(r.ExcludedSubints)},
			[2]string{"hot bins", fmt.Sprint(r.HotBins)},
			[2]string{"time", r.Duration.Round(time.Millisecond).String()},
		)
	}
}
