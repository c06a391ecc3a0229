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

import "fmt"

// NodeID is a handle into the node arena owned by a SearchTree.
type NodeID int

const (
	// RootID is the handle of the root node in every tree.
	RootID NodeID = 0

	// NoParent marks the root's parent link.
	NoParent NodeID = -1
)

// RefinementNode is one candidate answer in the search tree.
//
// Parent and Children are arena handles rather than pointers, so a node never
// owns its parent. Answer is fixed at creation; only Visits and Value change,
// and only through backpropagation.
//
// Thread Safety: Not safe for concurrent use. Owned by a single SearchTree.
type RefinementNode struct {
	ID       NodeID   `json:"id"`
	Question string   `json:"-"`
	Answer   string   `json:"answer"`
	Parent   NodeID   `json:"parent"`
	Children []NodeID `json:"children,omitempty"`
	Depth    int      `json:"depth"`

	// Search statistics
	Visits int     `json:"visits"`
	Value  float64 `json:"value"`
}

// IsFullyExpanded reports whether the node has reached the branching limit.
func (n *RefinementNode) IsFullyExpanded(maxChildren int) bool {
	return len(n.Children) >= maxChildren
}

// AddChild appends a child handle.
//
// The branching limit is not checked here; the search loop only expands
// nodes that are not fully expanded.
func (n *RefinementNode) AddChild(id NodeID) {
	n.Children = append(n.Children, id)
}

// IsRoot reports whether the node has no parent.
func (n *RefinementNode) IsRoot() bool {
	return n.Parent == NoParent
}

// Mean returns Value/Visits, or 0 for an unvisited node.
func (n *RefinementNode) Mean() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.Value / float64(n.Visits)
}

// String returns a short human-readable description of the node.
func (n *RefinementNode) String() string {
	return fmt.Sprintf("Node[%d](visits=%d, mean=%.2f, children=%d)",
		n.ID, n.Visits, n.Mean(), len(n.Children))
}
