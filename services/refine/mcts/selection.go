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

import "math"

// DefaultExplorationConstant approximates sqrt(2).
const DefaultExplorationConstant = 1.41

// SelectionPolicy scores a child for descent during the select phase.
//
// Higher scores are preferred. The search takes the first child with the
// highest score, so equal scores resolve in insertion order.
type SelectionPolicy interface {
	// Score returns the priority of child given its parent's visit count.
	Score(child *RefinementNode, parentVisits int) float64

	// Name returns the policy name for logging.
	Name() string
}

// UCTPolicy implements the UCT rule for answer refinement.
//
// Thread Safety: Safe for concurrent use (stateless).
type UCTPolicy struct {
	// C is the exploration constant.
	C float64
}

// NewUCTPolicy creates a UCT policy with the given exploration constant.
//
// Inputs:
//   - c: Exploration constant. Negative values fall back to DefaultExplorationConstant.
//
// Outputs:
//   - *UCTPolicy: The policy.
func NewUCTPolicy(c float64) *UCTPolicy {
	if c < 0 {
		c = DefaultExplorationConstant
	}
	return &UCTPolicy{C: c}
}

// Score implements SelectionPolicy.
func (p *UCTPolicy) Score(child *RefinementNode, parentVisits int) float64 {
	return UCT(child.Value, child.Visits, parentVisits, p.C)
}

// Name implements SelectionPolicy.
func (p *UCTPolicy) Name() string {
	return "uct"
}

// UCT computes value/visits + c*sqrt(2*ln(parentVisits)/visits).
//
// Description:
//
//	An unvisited child gets +Inf so that every child is tried once before
//	exploitation takes over. A non-positive parent visit count contributes
//	no exploration bonus instead of evaluating ln(0).
//
// Inputs:
//   - value: Accumulated reward of the child.
//   - visits: Visit count of the child.
//   - parentVisits: Visit count of the parent.
//   - c: Exploration constant.
//
// Outputs:
//   - float64: The priority.
func UCT(value float64, visits, parentVisits int, c float64) float64 {
	if visits == 0 {
		return math.Inf(1)
	}

	exploit := value / float64(visits)
	if parentVisits <= 0 {
		return exploit
	}

	explore := math.Sqrt(2 * math.Log(float64(parentVisits)) / float64(visits))
	return exploit + c*explore
}

// argmax returns the index of the first maximal score, or -1 for no scores.
func argmax(n int, score func(i int) float64) int {
	best := -1
	bestScore := math.Inf(-1)
	for i := 0; i < n; i++ {
		s := score(i)
		if best == -1 || s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}
