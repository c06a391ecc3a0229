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
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrPromptAborted is returned when the user cancels the prompt.
var ErrPromptAborted = errors.New("ux: prompt aborted")

// AskQuestion interactively asks for the question to refine. An empty
// submission returns fallback.
func AskQuestion(fallback string) (string, error) {
	var question string
	field := huh.NewText().
		Title("Question").
		Description("What should be answered and refined? Leave empty for the built-in example.").
		Placeholder(fallback).
		CharLimit(8000).
		Value(&question)

	if err := field.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrPromptAborted
		}
		return "", err
	}

	if q := strings.TrimSpace(question); q != "" {
		return q, nil
	}
	return fallback, nil
}
