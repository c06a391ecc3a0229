// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package judge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed passes every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe through.
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening (default: 3).
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" validate:"gte=1"`

	// SuccessThreshold is probe successes needed to close again (default: 2).
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" validate:"gte=1"`

	// OpenDuration is the cool-down before a probe is allowed (default: 30s).
	OpenDuration time.Duration `json:"open_duration" yaml:"open_duration" validate:"gte=0"`
}

// DefaultBreakerConfig returns the stock breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Second,
	}
}

// BreakerStats is a point-in-time view of a Breaker.
type BreakerStats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Breaker stops calling a failing model for a cool-down period.
//
// While open, calls fail fast with ErrCircuitOpen, which the search treats
// like any other judge failure. Context cancellation is not counted as a
// model failure.
//
// Thread Safety: Safe for concurrent use.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	successes     int
	changedAt     time.Time
	probeInFlight bool

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config:    config,
		now:       time.Now,
		state:     BreakerClosed,
		changedAt: time.Now(),
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker is open.
//
// Inputs:
//   - ctx: Checked before fn runs. A cancelled context is returned as-is.
//   - fn: The guarded call.
//
// Outputs:
//   - error: ErrCircuitOpen if rejected, otherwise the error from fn.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probeInFlight = false
	}
	switch {
	case err == nil:
		b.onSuccess()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Caller gave up; says nothing about the model.
	default:
		b.onFailure()
	}
	return err
}

// admit decides whether a call may proceed and whether it is the half-open probe.
func (b *Breaker) admit() (probe bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	if b.state == BreakerOpen && b.now().Sub(b.changedAt) >= b.config.OpenDuration {
		b.setState(BreakerHalfOpen)
	}

	switch b.state {
	case BreakerClosed:
		return false, true
	case BreakerHalfOpen:
		if b.probeInFlight {
			b.totalRejections++
			return false, false
		}
		b.probeInFlight = true
		return true, true
	default:
		b.totalRejections++
		return false, false
	}
}

// onSuccess must be called with mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(BreakerClosed)
		}
	}
}

// onFailure must be called with mu held.
func (b *Breaker) onFailure() {
	b.totalFailures++
	b.failures++
	b.successes = 0
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.setState(BreakerOpen)
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(s BreakerState) {
	b.state = s
	b.changedAt = b.now()
	b.failures = 0
	b.successes = 0
}

// Stats returns breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.state.String(),
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
		LastStateChange: b.changedAt,
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(BreakerClosed)
	b.probeInFlight = false
}
