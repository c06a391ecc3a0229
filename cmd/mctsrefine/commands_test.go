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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/policy"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag so commands can run repeatedly in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mctsrefine dev\n", out)
}

func TestRefine_OfflineJSON(t *testing.T) {
	out, err := execute(t, "refine", "--offline", "--no-history", "--json",
		"--iterations", "2", "--reference", `\boxed{2}`, "What is 1+1?")
	require.NoError(t, err)

	var result runner.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "What is 1+1?", result.Question)
	assert.Equal(t, "2", result.Reference)
	assert.Equal(t, "vanilla answer", result.Vanilla)
	assert.True(t, strings.HasSuffix(result.Refined, " v2"), "refined = %q", result.Refined)
	assert.Equal(t, 2, result.Config.Iterations)
	assert.Len(t, result.Events, 2)
	require.NotNil(t, result.RefinedRating)
	assert.Equal(t, 80, *result.RefinedRating)
}

func TestRefine_OfflinePlain(t *testing.T) {
	out, err := execute(t, "refine", "--offline", "--no-history",
		"-n", "1", "-q", "Why?", "--reference", "Because.")
	require.NoError(t, err)

	for _, want := range []string{
		"QUESTION\n", "Why?\n",
		"VANILLA ANSWER\n", "vanilla answer\n",
		"MCTS IMPROVED ANSWER\n",
		"GROUND TRUTH\n", "Because.\n",
		"EVALUATION SCORES\n",
		"Vanilla Answer Score: 80\n",
		"MCTS Answer Score:    80\n",
		"Search: 1 iterations, 2 nodes, depth 1\n",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRefine_DefaultQuestion(t *testing.T) {
	out, err := execute(t, "refine", "--offline", "--no-history", "--json", "-n", "1")
	require.NoError(t, err)

	var result runner.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, runner.DefaultQuestion, result.Question)
	assert.Equal(t, runner.DefaultReference, result.Reference)
}

func TestRefine_InvalidOverride(t *testing.T) {
	_, err := execute(t, "refine", "--offline", "--no-history", "--iterations", "-1")
	assert.ErrorIs(t, err, mcts.ErrInvalidConfig)
}

func TestRefine_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "refine", "--offline", "--no-history", "--log-level", "loud")
	require.Error(t, err)
}

func TestHistory_Lifecycle(t *testing.T) {
	t.Setenv("MCTSREFINE_HISTORY_PATH", t.TempDir())

	out, err := execute(t, "refine", "--offline", "--json", "-n", "1", "-q", "Stored?")
	require.NoError(t, err)
	var result runner.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	out, err = execute(t, "history", "list", "--json")
	require.NoError(t, err)
	var summaries []history.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, result.RunID, summaries[0].RunID)
	assert.Equal(t, "Stored?", summaries[0].Question)

	out, err = execute(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, result.RunID)
	assert.Contains(t, out, "80 -> 80")

	out, err = execute(t, "history", "show", result.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "MCTS IMPROVED ANSWER")
	assert.Contains(t, out, result.Refined)

	out, err = execute(t, "history", "delete", result.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run "+result.RunID)

	_, err = execute(t, "history", "show", result.RunID)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestHistory_Disabled(t *testing.T) {
	t.Setenv("MCTSREFINE_HISTORY_DISABLED", "true")

	_, err := execute(t, "history", "list")
	assert.ErrorIs(t, err, errHistoryDisabled)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\nline   text", 20, "multi line text"},
		{"abcdefghij", 5, "abcd…"},
		{"ümlaut ümlaut", 7, "ümlaut…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRefine_PolicyBlocksSecrets(t *testing.T) {
	_, err := execute(t, "refine", "--offline", "--no-history", "-q", "is AKIA1234567890123456 valid?")
	assert.ErrorIs(t, err, policy.ErrSensitiveContent)

	t.Setenv("MCTSREFINE_POLICY_DISABLED", "true")
	_, err = execute(t, "refine", "--offline", "--no-history", "--json", "-n", "1", "-q", "is AKIA1234567890123456 valid?")
	assert.NoError(t, err)
}
