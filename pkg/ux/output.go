// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output for the mctsrefine CLI: styled
// sections on a TTY, plain text everywhere else.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette: deep ocean teals and arctic waters.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles are the pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Rule    lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Rule:    lipgloss.NewStyle().Foreground(ColorTealDeep),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealPrimary).
		Padding(0, 1),
}

// Icons.
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
	IconArrow   = "→"
)

const ruleWidth = 60

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes CLI output, styled when attached to a terminal.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter returns a Printer for w. Output is styled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = IsTerminal(f)
	}
	return &Printer{out: w, styled: styled}
}

// NewPlainPrinter returns a Printer that never styles its output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// Styled reports whether output is styled.
func (p *Printer) Styled() bool {
	return p.styled
}

// Section prints a heading framed by rules.
func (p *Printer) Section(title string) {
	rule := strings.Repeat("=", ruleWidth)
	if !p.styled {
		fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", rule, title, rule)
		return
	}
	rule = Styles.Rule.Render(strings.Repeat("━", ruleWidth))
	fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", rule, Styles.Title.Render(title), rule)
}

// Text prints a block of text followed by a newline.
func (p *Printer) Text(text string) {
	fmt.Fprintln(p.out, text)
}

// Markdown prints text rendered as markdown on a terminal, verbatim otherwise.
func (p *Printer) Markdown(text string) {
	if !p.styled {
		p.Text(text)
		return
	}
	fmt.Fprint(p.out, RenderMarkdown(text, ruleWidth+20))
}

// Field prints "label: value".
func (p *Printer) Field(label, value string) {
	if !p.styled {
		fmt.Fprintf(p.out, "%s: %s\n", label, value)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render(label+":"), value)
}

// Scores prints the vanilla and refined ratings side by side.
func (p *Printer) Scores(vanilla, refined *int) {
	v, r := FormatRating(vanilla), FormatRating(refined)
	if !p.styled {
		fmt.Fprintf(p.out, "Vanilla Answer Score: %s\n", v)
		fmt.Fprintf(p.out, "MCTS Answer Score:    %s\n", r)
		return
	}

	style := Styles.Bold
	switch {
	case vanilla == nil || refined == nil:
	case *refined > *vanilla:
		style = Styles.Success.Bold(true)
	case *refined < *vanilla:
		style = Styles.Warning.Bold(true)
	}
	table := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("%-8s %s", "Vanilla", Styles.Bold.Render(v)),
		fmt.Sprintf("%-8s %s", "MCTS", style.Render(r)),
	)
	fmt.Fprintln(p.out, Styles.Box.Render(table))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	p.status(IconSuccess, Styles.Success, text)
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	p.status(IconWarning, Styles.Warning, text)
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	p.status(IconError, Styles.Error, text)
}

func (p *Printer) status(icon string, style lipgloss.Style, text string) {
	if !p.styled {
		fmt.Fprintf(p.out, "%s %s\n", icon, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", style.Render(icon), style.Render(text))
}

// FormatRating renders a rating, or "n/a" when it could not be parsed.
func FormatRating(n *int) string {
	if n == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *n)
}

// ProgressBar renders a bar of the given width for current out of total.
func ProgressBar(current, total, width int, styled bool) string {
	if total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	current = min(max(current, 0), total)
	filled := current * width / total
	bar := strings.Repeat("█", filled)
	empty := strings.Repeat("░", width-filled)
	if styled {
		bar = Styles.Success.Render(bar)
		empty = Styles.Muted.Render(empty)
	}
	return fmt.Sprintf("%s %d/%d", bar+empty, current, total)
}
