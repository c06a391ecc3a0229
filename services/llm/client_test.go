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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "carrier-pigeon"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := New(context.Background(), Config{Backend: BackendOpenAI})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(context.Background(), Config{Backend: BackendAnthropic})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("TEST_REFINE_KEY", "from-env")

	assert.Equal(t, "explicit", resolveAPIKey("explicit", "TEST_REFINE_KEY", "none"))
	assert.Equal(t, "from-env", resolveAPIKey("", "TEST_REFINE_KEY", "none"))
	assert.Equal(t, "", resolveAPIKey("", "TEST_REFINE_KEY_UNSET", "does-not-exist"))
}

func TestConfig_Params(t *testing.T) {
	temp := float32(0.3)
	maxTokens := 256
	cfg := Config{Temperature: &temp, MaxTokens: &maxTokens}

	p := cfg.Params()
	require.NotNil(t, p.Temperature)
	require.NotNil(t, p.MaxTokens)
	assert.Equal(t, float32(0.3), *p.Temperature)
	assert.Equal(t, 256, *p.MaxTokens)
}

func TestOllamaClient_Generate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "Rating: 70", Done: true})
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{BaseURL: srv.URL + "/", Model: "tiny"})
	require.NoError(t, err)

	temp := float32(0.1)
	out, err := client.Generate(context.Background(), "rate this", GenerationParams{Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, "Rating: 70", out)
	assert.Equal(t, "tiny", got.Model)
	assert.Equal(t, "rate this", got.Prompt)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.1, got.Options["temperature"], 1e-6)
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'tiny' not found"}`))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{BaseURL: srv.URL, Model: "tiny"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull tiny")
}

func TestOllamaClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	_, err := NewOllamaClient(Config{})
	assert.Error(t, err)
}

func TestAnthropicClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "They can "},
				{Type: "text", Text: "use the boat."},
			},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "How do they cross?", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "They can use the boat.", out)

	// The enclave is reusable across requests.
	_, err = client.Generate(context.Background(), "again", GenerationParams{})
	assert.NoError(t, err)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicResponse{})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi", GenerationParams{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Rating: 88"}}]
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "rate", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "Rating: 88", out)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "choices": []}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "rate", GenerationParams{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model",
			"parts": [{"text": "Rating: 64"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-test",
	})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "rate", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "Rating: 64", out)
}
