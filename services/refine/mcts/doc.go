// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcts implements Monte Carlo Tree Search over candidate answers.
//
// A SearchTree refines the answer to a single fixed question. Every node holds
// one candidate answer; children are rewrites of their parent produced by a
// Judge that first critiques and then improves the parent's answer. The Judge
// also scores answers, and those scores drive the search toward the most
// promising lineage.
//
// # Architecture
//
// The package consists of several key components:
//
//   - SearchTree: Owns the node arena and runs the search loop
//   - RefinementNode: One candidate answer plus visit/value statistics
//   - SelectionPolicy: Chooses which child to descend into (UCTPolicy)
//   - Judge: External capability that critiques, improves and scores answers
//   - Config: Iteration budget, branching limit, exploration constant
//
// # MCTS Phases
//
// 1. SELECT: Descend from the root through fully expanded nodes using UCT
// 2. EXPAND: Critique and rewrite the selected answer into one new child
// 3. SIMULATE: Score the new child and parse "Rating: <n>" into a reward
// 4. BACKPROPAGATE: Add the reward and one visit to every node up to the root
//
// After the iteration budget is spent the root child with the highest mean
// reward is returned.
//
// # Failure Handling
//
// Judge failures never abort a search. A failed critique or rewrite becomes
// empty text and a failed or unparseable score becomes a reward of 0. The only
// error surfaced at the end is ErrEmptyResult, returned when the root has no
// children to choose from.
//
// # Thread Safety
//
// A SearchTree is not safe for concurrent use. Iterations run strictly in
// sequence on the caller's goroutine. Independent trees may run concurrently.
//
// # Observability
//
// The package integrates with OpenTelemetry for:
//   - Spans for the whole search and for each iteration
//   - Counters for iterations, nodes and judge failures
//   - A reward histogram
package mcts
