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

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logJSON    bool
	offline    bool

	// refine
	question    string
	reference   string
	iterations  int
	maxChildren int
	backendType string
	modelName   string
	jsonOutput  bool
	noHistory   bool

	// serve
	listenAddr string

	// history
	historyLimit int

	rootCmd = &cobra.Command{
		Use:   "mctsrefine",
		Short: "Answer a question with an LLM and refine the answer with MCTS",
		Long: `mctsrefine asks an LLM for a baseline answer, then searches for a
better one: each step critiques an answer, rewrites it and has the model
rate the rewrite. Both answers are rated at the end.`,
		SilenceUsage: true,
	}

	refineCmd = &cobra.Command{
		Use:   "refine [question]",
		Short: "Refine one answer and print both answers with their ratings",
		Args:  cobra.ArbitraryArgs,
		RunE:  runRefine, // Defined in cmd_refine.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the refinement HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Inspect stored refinement runs",
	}
	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList, // Defined in cmd_history.go
	}
	historyShowCmd = &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyDeleteCmd = &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mctsrefine %s\n", version)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	pf.BoolVar(&offline, "offline", false, "Use a deterministic built-in judge instead of an LLM")

	rf := refineCmd.Flags()
	rf.StringVarP(&question, "question", "q", "", "Question to answer (prompted for on a terminal when empty)")
	rf.StringVar(&reference, "reference", "", "Ground truth answer; \\boxed{...} is unwrapped")
	rf.IntVarP(&iterations, "iterations", "n", 0, "Search iterations (overrides config)")
	rf.IntVar(&maxChildren, "max-children", 0, "Children per node (overrides config)")
	rf.StringVar(&backendType, "backend", "", "LLM backend: gemini, openai, ollama, anthropic")
	rf.StringVar(&modelName, "model", "", "Model name for the backend")
	rf.BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	rf.BoolVar(&noHistory, "no-history", false, "Do not store this run")

	sf := serveCmd.Flags()
	sf.StringVar(&listenAddr, "addr", "", "Listen address (overrides config)")
	sf.StringVar(&backendType, "backend", "", "LLM backend: gemini, openai, ollama, anthropic")
	sf.StringVar(&modelName, "model", "", "Model name for the backend")
	sf.BoolVar(&noHistory, "no-history", false, "Do not store runs")

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print summaries as JSON")
	historyShowCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(refineCmd, serveCmd, historyCmd, versionCmd)
}
