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
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// DefaultSeedAnswers are the placeholder answers a root may start from.
var DefaultSeedAnswers = []string{
	"I don't know the answer",
	"I'm not sure",
	"I can't say",
}

// Config holds the search parameters for one SearchTree.
//
// Zero Iterations or zero MaxChildren are valid but leave the root without
// children, so Search returns ErrEmptyResult.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Iterations is the number of select/expand/simulate/backpropagate rounds.
	Iterations int `json:"iterations" yaml:"iterations" validate:"gte=0"`

	// MaxChildren is the branching limit per node.
	MaxChildren int `json:"max_children" yaml:"max_children" validate:"gte=0"`

	// ExplorationConstant is C in the UCT formula.
	ExplorationConstant float64 `json:"exploration_constant" yaml:"exploration_constant" validate:"gte=0"`

	// RewardCeiling caps a parsed rating before it is divided by 100.
	RewardCeiling int `json:"reward_ceiling" yaml:"reward_ceiling" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the stock search parameters.
//
// Outputs:
//   - Config: 3 iterations, 3 children, C=1.41, ceiling 95.
func DefaultConfig() Config {
	return Config{
		Iterations:          3,
		MaxChildren:         3,
		ExplorationConstant: DefaultExplorationConstant,
		RewardCeiling:       DefaultRewardCeiling,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration is usable.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig and the validator errors, or nil.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides fields from MCTS_* environment variables.
//
// Unparseable values are ignored and the current value is kept.
//
// Inputs:
//   - config: The configuration to modify in place.
func ApplyEnv(config *Config) {
	if v := os.Getenv("MCTS_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Iterations = i
		}
	}
	if v := os.Getenv("MCTS_MAX_CHILDREN"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MaxChildren = i
		}
	}
	if v := os.Getenv("MCTS_EXPLORATION_CONSTANT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.ExplorationConstant = f
		}
	}
	if v := os.Getenv("MCTS_REWARD_CEILING"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.RewardCeiling = i
		}
	}
}
