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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errModel = errors.New("model unavailable")

// fakeClock lets tests move the breaker past its cool-down.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *Breaker {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenDuration: time.Minute})
	b.now = clock.now
	b.changedAt = clock.now()
	return b
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	fail := func() error { return errModel }

	assert.ErrorIs(t, b.Execute(ctx, fail), errModel)
	assert.Equal(t, BreakerClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errModel)
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not call through")

	stats := b.Stats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(2), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalRejections)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = b.Execute(ctx, func() error { return errModel })
	}
	require.Equal(t, BreakerOpen, b.State())

	clock.advance(time.Minute)
	require.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = b.Execute(ctx, func() error { return errModel })
	}
	clock.advance(2 * time.Minute)

	assert.ErrorIs(t, b.Execute(ctx, func() error { return errModel }), errModel)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_ContextErrorsDoNotTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, func() error { return context.DeadlineExceeded })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, BreakerClosed, b.State())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	called := false
	err := b.Execute(cancelled, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBreaker_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func() error { return errModel })
	}
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("BreakerState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
