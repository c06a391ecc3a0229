// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package judge provides the critique/improve/score capability used by the
// answer refinement search, backed by an LLM or by scripted test doubles.
package judge

import (
	"context"

	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
)

// Judge is an mcts.Judge that can also answer a question directly, which
// the runner uses for the unrefined baseline.
type Judge interface {
	mcts.Judge
	Answer(ctx context.Context, question string) (string, error)
}

var (
	_ Judge = (*LLMJudge)(nil)
	_ Judge = (*Scripted)(nil)
	_ Judge = Failing{}
	_ Judge = Func{}
)
