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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.Iterations)
	assert.Equal(t, 3, cfg.MaxChildren)
	assert.Equal(t, 1.41, cfg.ExplorationConstant)
	assert.Equal(t, 95, cfg.RewardCeiling)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"zero iterations allowed", func(c *Config) { c.Iterations = 0 }, false},
		{"zero children allowed", func(c *Config) { c.MaxChildren = 0 }, false},
		{"negative iterations", func(c *Config) { c.Iterations = -1 }, true},
		{"negative children", func(c *Config) { c.MaxChildren = -2 }, true},
		{"negative exploration", func(c *Config) { c.ExplorationConstant = -0.1 }, true},
		{"ceiling above 100", func(c *Config) { c.RewardCeiling = 101 }, true},
		{"ceiling 100", func(c *Config) { c.RewardCeiling = 100 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MCTS_ITERATIONS", "7")
	t.Setenv("MCTS_MAX_CHILDREN", "2")
	t.Setenv("MCTS_EXPLORATION_CONSTANT", "0.5")
	t.Setenv("MCTS_REWARD_CEILING", "not-a-number")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)

	assert.Equal(t, 7, cfg.Iterations)
	assert.Equal(t, 2, cfg.MaxChildren)
	assert.Equal(t, 0.5, cfg.ExplorationConstant)
	assert.Equal(t, DefaultRewardCeiling, cfg.RewardCeiling, "unparseable value keeps default")
}
