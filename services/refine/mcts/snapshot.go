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

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IterationEvent describes one finished iteration.
type IterationEvent struct {
	Iteration int           `json:"iteration"`
	Selected  NodeID        `json:"selected"`
	Target    NodeID        `json:"target"`
	Expanded  bool          `json:"expanded"`
	Depth     int           `json:"depth"`
	Critique  string        `json:"critique,omitempty"`
	Answer    string        `json:"answer"`
	Reward    float64       `json:"reward"`
	Duration  time.Duration `json:"duration"`
}

// Listener is called synchronously after every iteration.
type Listener func(IterationEvent)

// NodeSnapshot is a detached, nested copy of a node and its subtree.
type NodeSnapshot struct {
	ID       NodeID         `json:"id"`
	Answer   string         `json:"answer"`
	Depth    int            `json:"depth"`
	Visits   int            `json:"visits"`
	Value    float64        `json:"value"`
	Mean     float64        `json:"mean"`
	Children []NodeSnapshot `json:"children,omitempty"`
}

// TreeSnapshot is a serializable view of a SearchTree.
type TreeSnapshot struct {
	Question   string       `json:"question"`
	TotalNodes int          `json:"total_nodes"`
	MaxDepth   int          `json:"max_depth"`
	Root       NodeSnapshot `json:"root"`
}

// Snapshot copies the tree into a nested structure.
func (t *SearchTree) Snapshot() TreeSnapshot {
	return TreeSnapshot{
		Question:   t.question,
		TotalNodes: len(t.nodes),
		MaxDepth:   t.MaxDepth(),
		Root:       t.snapshotNode(RootID),
	}
}

func (t *SearchTree) snapshotNode(id NodeID) NodeSnapshot {
	n := t.nodes[id]
	s := NodeSnapshot{
		ID:     n.ID,
		Answer: n.Answer,
		Depth:  n.Depth,
		Visits: n.Visits,
		Value:  n.Value,
		Mean:   n.Mean(),
	}
	for _, c := range n.Children {
		s.Children = append(s.Children, t.snapshotNode(c))
	}
	return s
}

// MarshalJSON implements json.Marshaler.
func (t *SearchTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// Format returns a human-readable tree representation.
func (t *SearchTree) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Question: %s\n", truncate(t.question, 80)))
	sb.WriteString(fmt.Sprintf("Nodes: %d, Max Depth: %d\n", len(t.nodes), t.MaxDepth()))

	best, err := t.BestChild()
	if err == nil {
		sb.WriteString(fmt.Sprintf("Best: [%d] mean %.2f\n", best.ID, best.Mean()))
	}
	sb.WriteString("\n")

	bestID := NoParent
	if best != nil {
		bestID = best.ID
	}
	t.formatNode(&sb, RootID, "", true, bestID)
	return sb.String()
}

func (t *SearchTree) formatNode(sb *strings.Builder, id NodeID, prefix string, isLast bool, bestID NodeID) {
	node := t.nodes[id]

	branch := "├── "
	if isLast {
		branch = "└── "
	}

	marker := ""
	if id == bestID {
		marker = " ★"
	}

	answer := strings.ReplaceAll(node.Answer, "\n", " ")
	sb.WriteString(fmt.Sprintf("%s%s[%d] %q (mean: %.2f, visits: %d)%s\n",
		prefix, branch, node.ID, truncate(answer, 40), node.Mean(), node.Visits, marker))

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	for i, child := range node.Children {
		t.formatNode(sb, child, childPrefix, i == len(node.Children)-1, bestID)
	}
}
