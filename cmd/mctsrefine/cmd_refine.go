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
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/mctsrefine/pkg/ux"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/spf13/cobra"
)

func runRefine(cmd *cobra.Command, args []string) error {
	interactive := !jsonOutput && ux.IsTerminal(os.Stdin) && ux.IsTerminal(os.Stdout)

	a, err := newApp(cmd.Context(), cmd, appOptions{
		withRunner:  true,
		withHistory: true,
		quietLogs:   interactive,
	})
	if err != nil {
		return err
	}
	defer a.close()

	q := strings.TrimSpace(question)
	if q == "" {
		q = strings.TrimSpace(strings.Join(args, " "))
	}
	if q == "" && interactive {
		q, err = ux.AskQuestion(runner.DefaultQuestion)
		if err != nil {
			return err
		}
	}

	req := runner.Request{Question: q, Reference: reference}
	if cmd.Flags().Changed("iterations") {
		req.Iterations = &iterations
	}
	if cmd.Flags().Changed("max-children") {
		req.MaxChildren = &maxChildren
	}

	if interactive {
		total := a.runner.Config().Iterations
		if req.Iterations != nil {
			total = *req.Iterations
		}
		progress := ux.StartProgress(os.Stderr, total)
		defer progress.Stop()
		req.OnIteration = func(e mcts.IterationEvent) {
			progress.Update(ux.ProgressUpdate{Iteration: e.Iteration, Reward: e.Reward, Expanded: e.Expanded})
			if e.Iteration == total {
				progress.Stage("Evaluating")
			}
		}
	}

	result, err := a.runner.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printResult(ux.NewPrinter(cmd.OutOrStdout()), result)
	return nil
}

// printResult prints the question, both answers, the ground truth and the
// ratings as labelled sections.
func printResult(p *ux.Printer, r *runner.Result) {
	p.Section("QUESTION")
	p.Text(r.Question)

	p.Section("VANILLA ANSWER")
	p.Markdown(r.Vanilla)

	p.Section("MCTS IMPROVED ANSWER")
	p.Markdown(r.Refined)

	if r.Reference != "" {
		p.Section("GROUND TRUTH")
		p.Text(r.Reference)
	}

	p.Section("EVALUATION SCORES")
	p.Scores(r.VanillaRating, r.RefinedRating)

	p.Text("")
	p.Field("Run", r.RunID)
	p.Field("Search", fmt.Sprintf("%d iterations, %d nodes, depth %d",
		r.Config.Iterations, r.Snapshot.TotalNodes, r.Snapshot.MaxDepth))
	p.Field("Duration", r.Duration.Round(time.Millisecond).String())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
