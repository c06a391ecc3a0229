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
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

var (
	critiqueTemplate = prompts.NewPromptTemplate(
		"Question: {{.question}}\n"+
			"Draft Answer: {{.draft}}\n"+
			"Please critique the draft and explain what is wrong or could be improved. "+
			"Re-state the question verbatim to ensure understanding, do not add any additional assumptions. "+
			"Think from first-principles and highlight any logical fallacies.",
		[]string{"question", "draft"},
	)

	improveTemplate = prompts.NewPromptTemplate(
		"Question: {{.question}}\n"+
			"Draft Answer: {{.draft}}\n"+
			"Critique: {{.critique}}\n"+
			"Please rewrite the answer to improve it.",
		[]string{"question", "draft", "critique"},
	)

	ratingTemplate = prompts.NewPromptTemplate(
		"Question: {{.question}}\n"+
			"Answer: {{.answer}}\n"+
			"Evaluate the answer and return a rating from 0 to 100. Format: Rating: <number>",
		[]string{"question", "answer"},
	)
)

// CritiquePrompt renders the prompt asking for a critique of draft.
func CritiquePrompt(question, draft string) (string, error) {
	return render(critiqueTemplate, map[string]any{
		"question": question,
		"draft":    draft,
	})
}

// ImprovePrompt renders the prompt asking for a rewrite of draft.
func ImprovePrompt(question, draft, critique string) (string, error) {
	return render(improveTemplate, map[string]any{
		"question": question,
		"draft":    draft,
		"critique": critique,
	})
}

// RatingPrompt renders the prompt asking for a 0-100 rating.
func RatingPrompt(question, answer string) (string, error) {
	return render(ratingTemplate, map[string]any{
		"question": question,
		"answer":   answer,
	})
}

func render(t prompts.PromptTemplate, values map[string]any) (string, error) {
	out, err := t.Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out, nil
}
