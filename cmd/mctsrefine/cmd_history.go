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
	"strings"
	"time"

	"github.com/AleutianAI/mctsrefine/pkg/ux"
	"github.com/spf13/cobra"
)

var errHistoryDisabled = errors.New("run history is disabled (history.disabled or MCTSREFINE_HISTORY_DISABLED)")

// openHistory wires an app with only the run store.
func openHistory(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd.Context(), cmd, appOptions{withHistory: true})
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		a.close()
		return nil, errHistoryDisabled
	}
	return a, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	summaries, err := a.store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), summaries)
	}

	p := ux.NewPrinter(cmd.OutOrStdout())
	if len(summaries) == 0 {
		p.Warning("No runs recorded yet.")
		return nil
	}
	for _, s := range summaries {
		p.Field(s.RunID, fmt.Sprintf("%s  %s -> %s  %s",
			s.StartedAt.Local().Format(time.DateTime),
			ux.FormatRating(s.VanillaRating),
			ux.FormatRating(s.RefinedRating),
			truncate(s.Question, 60)))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printResult(ux.NewPrinter(cmd.OutOrStdout()), result)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	ux.NewPrinter(cmd.OutOrStdout()).Success("Deleted run " + args[0])
	return nil
}

// truncate shortens s to at most n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
