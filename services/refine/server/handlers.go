// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/policy"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/AleutianAI/mctsrefine/services/refine/telemetry"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Findings lists what blocked a question rejected by screening.
	Findings []policy.Finding `json:"findings,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRefine runs one refinement. Identical requests already in flight
// share its result.
func (s *Server) handleRefine(c *gin.Context) {
	var req runner.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := s.validate.StructCtx(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// The flight outlives any single caller; only the timeout bounds it.
	flightCtx := context.WithoutCancel(c.Request.Context())
	ch := s.flights.DoChan(flightKey(req), func() (any, error) {
		ctx, cancel := s.runContext(flightCtx)
		defer cancel()
		return s.refiner.Run(ctx, req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			s.fail(c, res.Err)
			return
		}
		if res.Shared {
			s.metrics.SharedRuns.Inc()
		}
		c.JSON(http.StatusOK, res.Val)
	case <-c.Request.Context().Done():
		s.logger.Info("refine client went away", slog.String("error", c.Request.Context().Err().Error()))
		c.Abort()
	}
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run history is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer between 1 and 500"})
		return
	}

	summaries, err := s.runs.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if summaries == nil {
		summaries = []history.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": summaries})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run history is disabled"})
		return
	}

	result, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// runContext applies the configured request timeout.
func (s *Server) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(parent, s.config.RequestTimeout)
	}
	return context.WithCancel(parent)
}

// fail maps err to a status code and writes it.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	resp := ErrorResponse{Error: err.Error()}
	var violation *policy.ViolationError
	if errors.As(err, &violation) {
		logger.Warn("blocked refine request due to policy violation",
			slog.Int("findings", len(violation.Findings)))
		resp.Findings = violation.Findings
	}
	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mcts.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrSensitiveContent):
		return http.StatusForbidden
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mcts.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// flightKey identifies requests that would produce the same refinement.
func flightKey(req runner.Request) string {
	override := func(n *int) string {
		if n == nil {
			return "-"
		}
		return strconv.Itoa(*n)
	}
	return strings.Join([]string{
		strings.TrimSpace(req.Question),
		strings.TrimSpace(req.Reference),
		override(req.Iterations),
		override(req.MaxChildren),
	}, "\x00")
}
