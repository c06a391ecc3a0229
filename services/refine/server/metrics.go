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
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "mctsrefine"
	metricsSubsystem = "http"
)

// httpMetrics holds the Prometheus metrics for the API.
//
// Thread Safety: All operations are thread-safe.
type httpMetrics struct {
	// RequestsTotal counts requests. Labels: route, method, status.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures request latency. Labels: route, method.
	RequestDuration *prometheus.HistogramVec

	// ActiveStreams tracks open WebSocket refinement streams.
	ActiveStreams prometheus.Gauge

	// DroppedEvents counts iteration events dropped for slow stream clients.
	DroppedEvents prometheus.Counter

	// SharedRuns counts refine requests answered by an in-flight duplicate.
	SharedRuns prometheus.Counter
}

// defaultMetrics registers with the default registry exactly once.
var defaultMetrics = sync.OnceValue(func() *httpMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer)
})

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route and method",
				// Refinements take many LLM round trips.
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"route", "method"},
		),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_streams",
			Help:      "Open WebSocket refinement streams",
		}),
		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_dropped_events_total",
			Help:      "Iteration events dropped because a stream client fell behind",
		}),
		SharedRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "shared_runs_total",
			Help:      "Refine requests served by an identical in-flight refinement",
		}),
	}
}

// middleware records request count and latency per matched route.
func (m *httpMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
