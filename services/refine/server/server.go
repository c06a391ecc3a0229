// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes refinement over HTTP.
//
// # Routes
//
//	GET  /v1/health          liveness
//	POST /v1/refine          run one refinement and return the result
//	GET  /v1/refine/stream   WebSocket: send one request, receive iteration
//	                         events followed by the result
//	GET  /v1/runs            recent run summaries (?limit=N)
//	GET  /v1/runs/:id        one stored run
//	GET  /metrics            Prometheus metrics
//
// Identical concurrent POST /v1/refine requests share one refinement.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/mctsrefine/services/refine/config"
	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/singleflight"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

// ErrNilRefiner is returned by New without a refiner.
var ErrNilRefiner = errors.New("server: refiner must not be nil")

// Refiner runs refinements. Implemented by *runner.Runner.
type Refiner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Runs reads stored runs. Implemented by *history.Store.
type Runs interface {
	Get(ctx context.Context, id string) (*runner.Result, error)
	List(ctx context.Context, limit int) ([]history.Summary, error)
}

// Server is the refinement HTTP API.
//
// Thread Safety: Safe for concurrent use once built.
type Server struct {
	refiner  Refiner
	runs     Runs
	config   config.ServerConfig
	logger   *slog.Logger
	validate *validator.Validate
	metrics  *httpMetrics
	flights  singleflight.Group

	serviceName    string
	metricsHandler http.Handler
	router         *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithRuns enables the /v1/runs routes. Without it they answer 503.
func WithRuns(runs Runs) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler overrides the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metricsHandler = h
		}
	}
}

// WithServiceName sets the name reported on HTTP spans.
func WithServiceName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// New builds the server and its routes.
//
// Inputs:
//   - refiner: Runs refinements. Must not be nil.
//   - cfg: Listen address, timeouts and stream buffer size.
//   - opts: Optional configuration.
//
// Outputs:
//   - *Server: Ready to serve.
//   - error: ErrNilRefiner.
func New(refiner Refiner, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if refiner == nil {
		return nil, ErrNilRefiner
	}
	if cfg.StreamBuffer < 1 {
		cfg.StreamBuffer = 1
	}

	s := &Server{
		refiner:        refiner,
		config:         cfg,
		logger:         slog.Default(),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		metrics:        defaultMetrics(),
		serviceName:    "mctsrefine",
		metricsHandler: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(s.serviceName))
	router.Use(s.metrics.middleware())

	router.GET("/metrics", gin.WrapH(s.metricsHandler))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.POST("/refine", s.handleRefine)
		v1.GET("/refine/stream", s.handleStream)

		runs := v1.Group("/runs")
		{
			runs.GET("", s.handleListRuns)
			runs.GET("/:id", s.handleGetRun)
		}
	}
	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
//
// Outputs:
//   - error: Listener failures. nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
