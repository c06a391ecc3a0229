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
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/mctsrefine/pkg/logging"
	"github.com/AleutianAI/mctsrefine/services/llm"
	"github.com/AleutianAI/mctsrefine/services/refine/config"
	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/judge"
	"github.com/AleutianAI/mctsrefine/services/refine/policy"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/AleutianAI/mctsrefine/services/refine/telemetry"
	"github.com/spf13/cobra"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg      config.AppConfig
	logger   *logging.Logger
	store    *history.Store
	runner   *runner.Runner
	shutdown func(context.Context) error
}

// appOptions selects which components a command needs.
type appOptions struct {
	withRunner  bool
	withHistory bool
	quietLogs   bool
}

// loadConfig reads the config file and environment, then applies the
// command-line overrides that were explicitly set.
func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = logJSON
	}
	if flags.Changed("backend") {
		cfg.LLM.Backend = backendType
	}
	if flags.Changed("model") {
		cfg.LLM.Model = modelName
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = listenAddr
	}
	if flags.Changed("no-history") {
		cfg.History.Disabled = noHistory
	}

	return cfg, cfg.Validate()
}

// newApp wires logging, telemetry, the judge, run history and the runner.
func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Quiet:   opts.quietLogs && cfg.Logging.Dir != "",
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger.Slog())

	a := &app{cfg: cfg, logger: logger, shutdown: func(context.Context) error { return nil }}

	if opts.withRunner {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.shutdown = shutdown
	}

	if opts.withHistory && !cfg.History.Disabled {
		a.store, err = history.Open(cfg.History, logger.Slog())
		if err != nil {
			a.close()
			return nil, err
		}
	}

	if opts.withRunner {
		j, err := newJudge(ctx, cfg, logger.Slog())
		if err != nil {
			a.close()
			return nil, err
		}

		runnerOpts := []runner.Option{
			runner.WithLogger(logger.Slog()),
			runner.WithSeeds(cfg.Seeds),
			runner.WithTracing(cfg.Telemetry.TraceExporter != telemetry.ExporterNone),
		}
		if a.store != nil {
			runnerOpts = append(runnerOpts, runner.WithRecorder(a.store))
		}
		if !cfg.Policy.Disabled {
			screen, err := policy.New(cfg.Policy)
			if err != nil {
				a.close()
				return nil, err
			}
			runnerOpts = append(runnerOpts, runner.WithScreener(screen))
		}
		a.runner, err = runner.New(j, cfg.Search, runnerOpts...)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

// newJudge builds the LLM judge, or the scripted judge with --offline.
func newJudge(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (judge.Judge, error) {
	if offline {
		logger.Info("using the offline scripted judge")
		return judge.NewScripted(), nil
	}

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.LLM.Backend, err)
	}
	logger.Info("using LLM backend",
		slog.String("backend", cfg.LLM.Backend),
		slog.String("model", cfg.LLM.Model))

	return judge.NewLLMJudge(client, cfg.Judge,
		judge.WithLogger(logger),
		judge.WithParams(cfg.LLM.Params()))
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	_ = a.logger.Close()
}
