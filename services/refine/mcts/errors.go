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

import "errors"

// Sentinel errors for the mcts package.
var (
	// Result errors
	ErrEmptyResult = errors.New("mcts root has no children to choose from")

	// Construction errors
	ErrEmptyQuestion = errors.New("mcts question is empty")
	ErrNoSeedAnswers = errors.New("mcts seed answer set is empty")
	ErrNilJudge      = errors.New("mcts judge is nil")
	ErrInvalidConfig = errors.New("mcts config is invalid")

	// Lifecycle errors
	ErrSearchCompleted = errors.New("mcts search already ran on this tree")
	ErrNodeNotFound    = errors.New("mcts node not found")
)
