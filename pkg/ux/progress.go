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
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressUpdate reports one finished search iteration.
type ProgressUpdate struct {
	Iteration int
	Reward    float64
	Expanded  bool
}

// stageMsg changes the label shown next to the spinner.
type stageMsg string

// doneMsg ends the program.
type doneMsg struct{}

// progressModel is the bubbletea model behind Progress.
type progressModel struct {
	spinner    spinner.Model
	stage      string
	total      int
	iteration  int
	bestReward float64
	done       bool
}

func newProgressModel(total int) progressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(Styles.Success),
	)
	return progressModel{spinner: s, total: total, stage: "Answering"}
}

// Init starts the spinner animation.
func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles progress messages, spinner ticks and Ctrl+C.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressUpdate:
		m.stage = "Refining"
		m.iteration = msg.Iteration
		m.bestReward = max(m.bestReward, msg.Reward)
		return m, nil
	case stageMsg:
		m.stage = string(msg)
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the spinner line.
func (m progressModel) View() string {
	if m.done {
		return ""
	}
	line := fmt.Sprintf("%s %s", m.spinner.View(), Styles.Bold.Render(m.stage))
	if m.iteration > 0 {
		line += fmt.Sprintf("  %s  %s",
			ProgressBar(m.iteration, m.total, 20, true),
			Styles.Muted.Render(fmt.Sprintf("best reward %.2f", m.bestReward)))
	}
	return line + "\n"
}

// Progress shows a spinner with search progress while a refinement runs.
//
// Thread Safety: Update, Stage and Stop are safe to call from any goroutine.
type Progress struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// StartProgress starts rendering to out for a search of total iterations.
// Keyboard input is not read, so the caller keeps control of Ctrl+C.
func StartProgress(out io.Writer, total int) *Progress {
	p := &Progress{
		program: tea.NewProgram(newProgressModel(total),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler()),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Update records a finished iteration.
func (p *Progress) Update(u ProgressUpdate) {
	p.program.Send(u)
}

// Stage changes the label, for example to "Evaluating".
func (p *Progress) Stage(label string) {
	p.program.Send(stageMsg(label))
}

// Stop clears the spinner and waits for the renderer to exit.
func (p *Progress) Stop() {
	p.once.Do(func() {
		p.program.Send(doneMsg{})
		<-p.done
	})
}
