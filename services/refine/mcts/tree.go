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
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// Judge critiques, improves and scores answers to a question.
//
// Implementations may fail; the search converts any error into empty text
// (critique, improve) or a zero reward (score) and carries on.
type Judge interface {
	// Critique explains what is wrong with answer.
	Critique(ctx context.Context, question, answer string) (string, error)

	// Improve rewrites answer using critique.
	Improve(ctx context.Context, question, answer, critique string) (string, error)

	// Score returns free text expected to contain "Rating: <0-100>".
	Score(ctx context.Context, question, answer string) (string, error)
}

// SearchTree owns the node arena for one question and runs the search.
//
// Thread Safety: Not safe for concurrent use.
type SearchTree struct {
	question string
	nodes    []*RefinementNode
	judge    Judge
	config   Config
	policy   SelectionPolicy

	rng      *rand.Rand
	logger   *slog.Logger
	tracer   *Tracer
	listener Listener

	searched bool
}

// Option configures a SearchTree.
type Option func(*SearchTree)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *SearchTree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer *Tracer) Option {
	return func(t *SearchTree) {
		t.tracer = tracer
	}
}

// WithRand sets the random source used to pick the root's seed answer.
func WithRand(r *rand.Rand) Option {
	return func(t *SearchTree) {
		t.rng = r
	}
}

// WithListener registers a callback invoked after every iteration.
func WithListener(l Listener) Option {
	return func(t *SearchTree) {
		t.listener = l
	}
}

// WithPolicy replaces the UCT selection policy.
func WithPolicy(p SelectionPolicy) Option {
	return func(t *SearchTree) {
		if p != nil {
			t.policy = p
		}
	}
}

// New creates a search tree whose root answer is drawn from seeds.
//
// Inputs:
//   - question: The question every answer in the tree addresses. Must be non-empty.
//   - seeds: Placeholder answers for the root. One is picked at random.
//   - judge: Critiques, improves and scores answers. Must not be nil.
//   - config: Search parameters. Validated here.
//   - opts: Optional configuration.
//
// Outputs:
//   - *SearchTree: The tree, holding only the root.
//   - error: ErrEmptyQuestion, ErrNoSeedAnswers, ErrNilJudge or ErrInvalidConfig.
func New(question string, seeds []string, judge Judge, config Config, opts ...Option) (*SearchTree, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeedAnswers
	}
	if judge == nil {
		return nil, ErrNilJudge
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	t := &SearchTree{
		question: question,
		judge:    judge,
		config:   config,
		policy:   NewUCTPolicy(config.ExplorationConstant),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = NewTracer(t.logger, true)
	}

	var pick int
	if t.rng != nil {
		pick = t.rng.IntN(len(seeds))
	} else {
		pick = rand.IntN(len(seeds))
	}

	t.nodes = []*RefinementNode{{
		ID:       RootID,
		Question: question,
		Answer:   seeds[pick],
		Parent:   NoParent,
	}}

	return t, nil
}

// Question returns the question being refined.
func (t *SearchTree) Question() string {
	return t.question
}

// Config returns the search parameters.
func (t *SearchTree) Config() Config {
	return t.config
}

// Root returns the root node.
func (t *SearchTree) Root() *RefinementNode {
	return t.nodes[RootID]
}

// Node returns the node with the given handle.
func (t *SearchTree) Node(id NodeID) (*RefinementNode, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return t.nodes[id], nil
}

// Len returns the number of nodes in the tree.
func (t *SearchTree) Len() int {
	return len(t.nodes)
}

// MaxDepth returns the depth of the deepest node.
func (t *SearchTree) MaxDepth() int {
	depth := 0
	for _, n := range t.nodes {
		depth = max(depth, n.Depth)
	}
	return depth
}

// Search runs the configured number of iterations and returns the best answer.
//
// Description:
//
//	Each iteration selects a node by UCT, expands it with one rewritten
//	child when it has room, scores the new child (or the selected node when
//	it is a fully expanded leaf), and backpropagates the reward to the root.
//	Judge failures are degraded, never returned. The search may run only
//	once per tree.
//
// Inputs:
//   - ctx: Passed to every judge call. Cancellation stops the loop before
//     the next iteration.
//
// Outputs:
//   - string: Answer of the root child with the highest mean reward.
//   - error: ErrEmptyResult if the root has no children, ErrSearchCompleted
//     on a second call, or the context error on cancellation.
func (t *SearchTree) Search(ctx context.Context) (string, error) {
	if t.searched {
		return "", ErrSearchCompleted
	}
	t.searched = true

	start := time.Now()
	ctx, span := t.tracer.StartSearch(ctx, t.question, t.config)

	for i := 1; i <= t.config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("search stopped before iteration %d: %w", i, err)
			t.tracer.EndSearch(span, len(t.nodes), nil, time.Since(start), err)
			RecordSearch(ctx, len(t.nodes), time.Since(start), err)
			return "", err
		}
		t.runIteration(ctx, i)
	}

	best, err := t.BestChild()
	elapsed := time.Since(start)
	t.tracer.EndSearch(span, len(t.nodes), best, elapsed, err)
	RecordSearch(ctx, len(t.nodes), elapsed, err)
	if err != nil {
		t.logger.Warn("MCTS produced no candidates",
			slog.Int("iterations", t.config.Iterations),
			slog.Int("max_children", t.config.MaxChildren))
		return "", err
	}

	t.logger.Info("MCTS complete",
		slog.Int("iterations", t.config.Iterations),
		slog.Int("nodes", len(t.nodes)),
		slog.Int("best_node", int(best.ID)),
		slog.Float64("best_mean", best.Mean()),
		slog.Duration("elapsed", elapsed))

	return best.Answer, nil
}

// BestChild returns the root child with the highest mean reward.
//
// Unvisited children count as 0 here. The first child wins ties.
//
// Outputs:
//   - *RefinementNode: The best child.
//   - error: ErrEmptyResult when the root has no children.
func (t *SearchTree) BestChild() (*RefinementNode, error) {
	children := t.Root().Children
	i := argmax(len(children), func(i int) float64 {
		return t.nodes[children[i]].Mean()
	})
	if i < 0 {
		return nil, ErrEmptyResult
	}
	return t.nodes[children[i]], nil
}

// runIteration performs one select/expand/simulate/backpropagate round.
func (t *SearchTree) runIteration(ctx context.Context, iteration int) IterationEvent {
	start := time.Now()
	ctx, span := t.tracer.StartIteration(ctx, iteration)

	selected := t.selectNode()
	event := IterationEvent{
		Iteration: iteration,
		Selected:  selected,
		Target:    selected,
	}

	// A fully expanded leaf is its own simulation target.
	if !t.nodes[selected].IsFullyExpanded(t.config.MaxChildren) {
		event.Target, event.Critique = t.expand(ctx, selected)
		event.Expanded = true
	}

	target := t.nodes[event.Target]
	event.Reward = t.simulate(ctx, target)
	t.backpropagate(event.Target, event.Reward)

	event.Answer = target.Answer
	event.Depth = target.Depth
	event.Duration = time.Since(start)

	t.tracer.EndIteration(span, event)
	RecordIteration(ctx, event.Expanded, event.Reward)

	t.logger.Debug("iteration complete",
		slog.Int("iteration", iteration),
		slog.Int("selected", int(event.Selected)),
		slog.Int("target", int(event.Target)),
		slog.Bool("expanded", event.Expanded),
		slog.Float64("reward", event.Reward))

	if t.listener != nil {
		t.listener(event)
	}
	return event
}

// selectNode descends from the root while the current node is fully
// expanded and has children, taking the highest-priority child each step.
func (t *SearchTree) selectNode() NodeID {
	id := RootID
	for {
		node := t.nodes[id]
		if !node.IsFullyExpanded(t.config.MaxChildren) || len(node.Children) == 0 {
			return id
		}
		i := argmax(len(node.Children), func(i int) float64 {
			return t.policy.Score(t.nodes[node.Children[i]], node.Visits)
		})
		id = node.Children[i]
	}
}

// expand critiques and rewrites the parent's answer into one new child.
func (t *SearchTree) expand(ctx context.Context, parentID NodeID) (NodeID, string) {
	parent := t.nodes[parentID]

	critique, err := t.judge.Critique(ctx, t.question, parent.Answer)
	if err != nil {
		t.judgeFailed(ctx, "critique", err)
		critique = ""
	}

	improved, err := t.judge.Improve(ctx, t.question, parent.Answer, critique)
	if err != nil {
		t.judgeFailed(ctx, "improve", err)
		improved = ""
	}

	return t.addChild(parentID, improved), critique
}

// addChild creates a node under parentID and returns its handle.
func (t *SearchTree) addChild(parentID NodeID, answer string) NodeID {
	parent := t.nodes[parentID]
	child := &RefinementNode{
		ID:       NodeID(len(t.nodes)),
		Question: t.question,
		Answer:   answer,
		Parent:   parentID,
		Depth:    parent.Depth + 1,
	}
	t.nodes = append(t.nodes, child)
	parent.AddChild(child.ID)
	return child.ID
}

// simulate scores a node's answer and converts the response to a reward.
func (t *SearchTree) simulate(ctx context.Context, node *RefinementNode) float64 {
	text, err := t.judge.Score(ctx, t.question, node.Answer)
	if err != nil {
		t.judgeFailed(ctx, "score", err)
		return 0.0
	}

	if _, ok := ParseRating(text); !ok {
		RecordUnparsedRating(ctx)
		t.logger.Debug("no rating in judge response",
			slog.Int("node", int(node.ID)),
			slog.String("response", truncate(text, 80)))
		return 0.0
	}
	return ParseReward(text, t.config.RewardCeiling)
}

// backpropagate adds one visit and the reward to every node from id up to
// the root inclusive, and returns the number of nodes updated.
func (t *SearchTree) backpropagate(id NodeID, reward float64) int {
	updated := 0
	for id != NoParent {
		node := t.nodes[id]
		node.Visits++
		node.Value += reward
		id = node.Parent
		updated++
	}
	return updated
}

func (t *SearchTree) judgeFailed(ctx context.Context, operation string, err error) {
	t.logger.Warn("judge call failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()))
	t.tracer.JudgeFailed(ctx, operation, err)
	RecordJudgeFailure(ctx, operation)
}
