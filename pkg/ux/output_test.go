// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	assert.False(t, p.Styled())
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Section("QUESTION")
	p.Text("Why?")
	p.Markdown("**bold** stays raw")
	p.Field("Run", "abc")
	p.Success("saved")
	p.Warning("no rating")
	p.Error("failed")

	out := buf.String()
	assert.Contains(t, out, strings.Repeat("=", 60)+"\nQUESTION\n"+strings.Repeat("=", 60))
	assert.Contains(t, out, "Why?\n")
	assert.Contains(t, out, "**bold** stays raw\n")
	assert.Contains(t, out, "Run: abc\n")
	assert.Contains(t, out, "✓ saved\n")
	assert.Contains(t, out, "⚠ no rating\n")
	assert.Contains(t, out, "✗ failed\n")
}

func TestPrinter_Scores(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).Scores(intPtr(40), nil)

	assert.Equal(t, "Vanilla Answer Score: 40\nMCTS Answer Score:    n/a\n", buf.String())
}

func TestPrinter_StyledScores(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf, styled: true}
	p.Scores(intPtr(40), intPtr(85))

	assert.Contains(t, buf.String(), "40")
	assert.Contains(t, buf.String(), "85")
	assert.Contains(t, buf.String(), "Vanilla")
}

func TestFormatRating(t *testing.T) {
	assert.Equal(t, "n/a", FormatRating(nil))
	assert.Equal(t, "72", FormatRating(intPtr(72)))
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name           string
		current, total int
		want           string
	}{
		{"empty", 0, 4, "░░░░ 0/4"},
		{"half", 2, 4, "██░░ 2/4"},
		{"full", 4, 4, "████ 4/4"},
		{"overflow clamps", 9, 4, "████ 4/4"},
		{"no total", 3, 0, "3/0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressBar(tt.current, tt.total, 4, false); got != tt.want {
				t.Errorf("ProgressBar(%d, %d) = %q, want %q", tt.current, tt.total, got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("# Heading\n\nThey can use the boat.", 40)
	assert.Contains(t, out, "Heading")
	assert.Contains(t, out, "boat")
}
