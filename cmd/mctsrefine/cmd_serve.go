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
	"log/slog"

	"github.com/AleutianAI/mctsrefine/services/refine/config"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/AleutianAI/mctsrefine/services/refine/server"
	"github.com/AleutianAI/mctsrefine/services/refine/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd, appOptions{withRunner: true, withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []server.Option{
		server.WithLogger(a.logger.Slog()),
		server.WithServiceName(a.cfg.Telemetry.ServiceName),
		server.WithMetricsHandler(telemetry.MetricsHandler()),
	}
	if a.store != nil {
		opts = append(opts, server.WithRuns(a.store))
	}
	srv, err := server.New(a.runner, a.cfg.Server, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, configPath, reloadSearch(a.runner, a.logger.Slog()), a.logger.Slog())
		})
	}
	return g.Wait()
}

// reloadSearch applies the search section of a reloaded config file to
// subsequent runs. Other sections need a restart.
func reloadSearch(r *runner.Runner, logger *slog.Logger) func(config.AppConfig) {
	return func(cfg config.AppConfig) {
		if cfg.Search == r.Config() {
			return
		}
		if err := r.SetConfig(cfg.Search); err != nil {
			logger.Warn("ignoring reloaded search config", slog.String("error", err.Error()))
			return
		}
		logger.Info("search config reloaded",
			slog.Int("iterations", cfg.Search.Iterations),
			slog.Int("max_children", cfg.Search.MaxChildren),
			slog.Float64("exploration_constant", cfg.Search.ExplorationConstant))
	}
}
