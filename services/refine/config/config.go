// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the mctsrefine application configuration.
//
// Priority is environment > file > defaults. Files may be YAML or JSON.
//
// # Environment Variables
//
//   - MCTS_ITERATIONS, MCTS_MAX_CHILDREN, MCTS_EXPLORATION_CONSTANT,
//     MCTS_REWARD_CEILING: search parameters
//   - MCTSREFINE_BACKEND, MCTSREFINE_MODEL, MCTSREFINE_BASE_URL: LLM backend
//   - MCTSREFINE_REQUESTS_PER_SECOND: judge pacing
//   - MCTSREFINE_ADDR: server listen address
//   - MCTSREFINE_HISTORY_PATH, MCTSREFINE_HISTORY_DISABLED: run history
//   - MCTSREFINE_POLICY_DISABLED: question screening
//   - MCTSREFINE_LOG_LEVEL, MCTSREFINE_LOG_JSON, MCTSREFINE_LOG_DIR: logging
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/mctsrefine/services/llm"
	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/judge"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/policy"
	"github.com/AleutianAI/mctsrefine/services/refine/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8088").
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// ReadTimeout bounds reading a request's headers and body.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`

	// RequestTimeout bounds a whole refinement started over HTTP.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" validate:"gte=0"`

	// StreamBuffer is the per-connection event buffer for WebSocket streams.
	StreamBuffer int `json:"stream_buffer" yaml:"stream_buffer" validate:"gte=1"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json"`
	Dir   string `json:"dir" yaml:"dir"`
}

// AppConfig is the complete application configuration.
type AppConfig struct {
	Search    mcts.Config      `json:"search" yaml:"search"`
	Seeds     []string         `json:"seeds,omitempty" yaml:"seeds" validate:"omitempty,dive,required"`
	LLM       llm.Config       `json:"llm" yaml:"llm"`
	Judge     judge.Config     `json:"judge" yaml:"judge"`
	Server    ServerConfig     `json:"server" yaml:"server"`
	History   history.Config   `json:"history" yaml:"history"`
	Policy    policy.Config    `json:"policy" yaml:"policy"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig    `json:"logging" yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Search:  mcts.DefaultConfig(),
		LLM:     llm.DefaultConfig(),
		Judge:   judge.DefaultConfig(),
		History: history.DefaultConfig(),
		Policy:  policy.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8088",
			ReadTimeout:    30 * time.Second,
			RequestTimeout: 10 * time.Minute,
			StreamBuffer:   64,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Validate checks every section's struct tags.
func (c AppConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Load builds the configuration from defaults, the file at path (optional;
// a missing file is ignored) and the environment.
//
// Outputs:
//   - AppConfig: The merged configuration.
//   - error: Non-nil if the file is unreadable or malformed, or if the
//     result fails validation (wraps ErrInvalidConfig).
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mcts.ApplyEnv(&cfg.Search)
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse %s (tried YAML and JSON): YAML error: %v, JSON error: %w", path, err, jsonErr)
		}
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.LLM.Backend, "MCTSREFINE_BACKEND")
	setString(&cfg.LLM.Model, "MCTSREFINE_MODEL")
	setString(&cfg.LLM.BaseURL, "MCTSREFINE_BASE_URL")
	if v := os.Getenv("MCTSREFINE_REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Judge.RequestsPerSecond = f
		}
	}

	setString(&cfg.Server.Addr, "MCTSREFINE_ADDR")

	setString(&cfg.History.Path, "MCTSREFINE_HISTORY_PATH")
	setBool(&cfg.History.Disabled, "MCTSREFINE_HISTORY_DISABLED")
	setBool(&cfg.Policy.Disabled, "MCTSREFINE_POLICY_DISABLED")

	setString(&cfg.Logging.Level, "MCTSREFINE_LOG_LEVEL")
	setBool(&cfg.Logging.JSON, "MCTSREFINE_LOG_JSON")
	setString(&cfg.Logging.Dir, "MCTSREFINE_LOG_DIR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
