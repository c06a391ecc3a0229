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
	"sync"
)

// Scripted is a deterministic judge for tests and offline runs.
//
// Critique always returns CritiqueText, Improve appends Suffix to the answer
// and Score always returns ScoreText. Calls are counted per operation.
//
// Thread Safety: Safe for concurrent use.
type Scripted struct {
	CritiqueText string
	Suffix       string
	ScoreText    string
	AnswerText   string

	mu    sync.Mutex
	calls map[string]int
}

// NewScripted returns a judge that critiques with "ok", appends " v2" and
// scores "Rating: 80".
func NewScripted() *Scripted {
	return &Scripted{
		CritiqueText: "ok",
		Suffix:       " v2",
		ScoreText:    "Rating: 80",
		AnswerText:   "vanilla answer",
	}
}

func (s *Scripted) count(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
}

// Calls returns how many times op was called.
func (s *Scripted) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Answer returns AnswerText.
func (s *Scripted) Answer(ctx context.Context, question string) (string, error) {
	s.count("answer")
	return s.AnswerText, nil
}

// Critique implements mcts.Judge.
func (s *Scripted) Critique(ctx context.Context, question, answer string) (string, error) {
	s.count("critique")
	return s.CritiqueText, nil
}

// Improve implements mcts.Judge.
func (s *Scripted) Improve(ctx context.Context, question, answer, critique string) (string, error) {
	s.count("improve")
	return answer + s.Suffix, nil
}

// Score implements mcts.Judge.
func (s *Scripted) Score(ctx context.Context, question, answer string) (string, error) {
	s.count("score")
	return s.ScoreText, nil
}

// Failing is a judge whose every call returns Err (ErrScripted when nil).
type Failing struct {
	Err error
}

func (f Failing) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrScripted
}

// Answer always fails.
func (f Failing) Answer(ctx context.Context, question string) (string, error) {
	return "", f.err()
}

// Critique always fails.
func (f Failing) Critique(ctx context.Context, question, answer string) (string, error) {
	return "", f.err()
}

// Improve always fails.
func (f Failing) Improve(ctx context.Context, question, answer, critique string) (string, error) {
	return "", f.err()
}

// Score always fails.
func (f Failing) Score(ctx context.Context, question, answer string) (string, error) {
	return "", f.err()
}

// Func adapts closures to the judge operations. Nil closures return empty text.
type Func struct {
	AnswerFunc   func(ctx context.Context, question string) (string, error)
	CritiqueFunc func(ctx context.Context, question, answer string) (string, error)
	ImproveFunc  func(ctx context.Context, question, answer, critique string) (string, error)
	ScoreFunc    func(ctx context.Context, question, answer string) (string, error)
}

// Answer calls AnswerFunc.
func (f Func) Answer(ctx context.Context, question string) (string, error) {
	if f.AnswerFunc == nil {
		return "", nil
	}
	return f.AnswerFunc(ctx, question)
}

// Critique calls CritiqueFunc.
func (f Func) Critique(ctx context.Context, question, answer string) (string, error) {
	if f.CritiqueFunc == nil {
		return "", nil
	}
	return f.CritiqueFunc(ctx, question, answer)
}

// Improve calls ImproveFunc.
func (f Func) Improve(ctx context.Context, question, answer, critique string) (string, error) {
	if f.ImproveFunc == nil {
		return "", nil
	}
	return f.ImproveFunc(ctx, question, answer, critique)
}

// Score calls ScoreFunc.
func (f Func) Score(ctx context.Context, question, answer string) (string, error) {
	if f.ScoreFunc == nil {
		return "", nil
	}
	return f.ScoreFunc(ctx, question, answer)
}
