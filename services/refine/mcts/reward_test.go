// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReward(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"plain", "Rating: 80", 0.80},
		{"no space", "Rating:42", 0.42},
		{"embedded", "The answer is fine.\nRating: 67\nThanks", 0.67},
		{"first match wins", "Rating: 10 ... Rating: 90", 0.10},
		{"clamped at ceiling", "Rating: 100", 0.95},
		{"above range clamped", "Rating: 250", 0.95},
		{"exact ceiling", "Rating: 95", 0.95},
		{"zero", "Rating: 0", 0.0},
		{"missing pattern", "I would give it 80/100", 0.0},
		{"lowercase label", "rating: 80", 0.0},
		{"negative sign", "Rating: -5", 0.0},
		{"empty", "", 0.0},
		{"overflow", "Rating: 99999999999999999999999", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseReward(tt.text, DefaultRewardCeiling), 1e-12)
		})
	}
}

func TestParseReward_Bounds(t *testing.T) {
	for s := 0; s <= 100; s++ {
		text := "Rating: " + strconv.Itoa(s)
		got := ParseReward(text, DefaultRewardCeiling)
		want := float64(min(s, 95)) / 100
		if got != want {
			t.Errorf("ParseReward(%q) = %v, want %v", text, got, want)
		}
		if got < 0 || got > 0.95 {
			t.Errorf("ParseReward(%q) = %v outside [0, 0.95]", text, got)
		}
	}
}

func TestParseReward_CustomCeiling(t *testing.T) {
	assert.InDelta(t, 0.5, ParseReward("Rating: 80", 50), 1e-12)
	assert.InDelta(t, 1.0, ParseReward("Rating: 100", 100), 1e-12)
}

func TestParseRating(t *testing.T) {
	n, ok := ParseRating("Rating: 120")
	assert.True(t, ok)
	assert.Equal(t, 120, n)

	_, ok = ParseRating("no rating here")
	assert.False(t, ok)
}
