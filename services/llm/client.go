// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Supported backends.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
)

var (
	ErrMissingAPIKey   = errors.New("llm API key is missing")
	ErrUnknownBackend  = errors.New("llm backend is unknown")
	ErrEmptyCompletion = errors.New("llm returned no content")
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of gemini, openai, ollama, anthropic.
	Backend string `json:"backend" yaml:"backend" validate:"oneof=gemini openai ollama anthropic"`

	// Model overrides the backend's default model.
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the API endpoint. Required for ollama.
	BaseURL string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`

	// APIKey overrides the key read from the environment or secrets dir.
	APIKey string `json:"-" yaml:"api_key"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`

	// Temperature and MaxTokens are sent with every request when set.
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"omitempty,gt=0"`
}

// DefaultConfig returns a Gemini Flash configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendGemini,
		Model:   "gemini-2.0-flash",
		Timeout: 2 * time.Minute,
	}
}

// Params converts the configured sampling options into GenerationParams.
func (c Config) Params() GenerationParams {
	return GenerationParams{
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// New builds the client for cfg.Backend.
//
// Inputs:
//   - ctx: Used by backends that dial during construction (gemini).
//   - cfg: Backend configuration.
//
// Outputs:
//   - LLMClient: The client.
//   - error: ErrUnknownBackend, ErrMissingAPIKey, or a construction error.
func New(ctx context.Context, cfg Config) (LLMClient, error) {
	switch cfg.Backend {
	case BackendGemini:
		return NewGeminiClient(ctx, cfg)
	case BackendOpenAI:
		return NewOpenAIClient(cfg)
	case BackendOllama:
		return NewOllamaClient(cfg)
	case BackendAnthropic:
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// resolveAPIKey returns the explicit key, then the env var, then the
// contents of /run/secrets/<secretName>.
func resolveAPIKey(explicit, envVar, secretName string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	secretPath := "/run/secrets/" + secretName
	if content, err := os.ReadFile(secretPath); err == nil {
		slog.Info("Read API key from secrets", "path", secretPath)
		return strings.TrimSpace(string(content))
	}
	return ""
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
