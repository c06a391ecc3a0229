// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/mctsrefine/services/refine/config"
	"github.com/AleutianAI/mctsrefine/services/refine/history"
	"github.com/AleutianAI/mctsrefine/services/refine/judge"
	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/policy"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test Helpers
// =============================================================================

type refinerFunc func(ctx context.Context, req runner.Request) (*runner.Result, error)

func (f refinerFunc) Run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	return f(ctx, req)
}

type fakeRuns struct {
	results map[string]*runner.Result
	limit   int
}

func (f *fakeRuns) Get(ctx context.Context, id string) (*runner.Result, error) {
	r, ok := f.results[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, history.ErrNotFound)
	}
	return r, nil
}

func (f *fakeRuns) List(ctx context.Context, limit int) ([]history.Summary, error) {
	f.limit = limit
	var out []history.Summary
	for id, r := range f.results {
		out = append(out, history.Summary{RunID: id, Question: r.Question, Refined: r.Refined})
	}
	return out, nil
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:           "127.0.0.1:0",
		ReadTimeout:    time.Second,
		RequestTimeout: 10 * time.Second,
		StreamBuffer:   64,
	}
}

func newScriptedRunner(t *testing.T) *runner.Runner {
	t.Helper()
	cfg := mcts.DefaultConfig()
	cfg.Iterations = 2
	r, err := runner.New(judge.NewScripted(), cfg,
		runner.WithTracing(false),
		runner.WithSeeds([]string{"seed"}))
	require.NoError(t, err)
	return r
}

func newTestServer(t *testing.T, refiner Refiner, opts ...Option) *Server {
	t.Helper()
	s, err := New(refiner, testServerConfig(), opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_NilRefiner(t *testing.T) {
	_, err := New(nil, testServerConfig())
	assert.ErrorIs(t, err, ErrNilRefiner)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	w := do(t, s, http.MethodGet, "/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRefine_Success(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	w := do(t, s, http.MethodPost, "/v1/refine", `{"question":"Why?","reference":"\\boxed{42}"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result runner.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Why?", result.Question)
	assert.Equal(t, "vanilla answer", result.Vanilla)
	assert.Equal(t, "seed v2", result.Refined)
	assert.Equal(t, "42", result.Reference)
	require.NotNil(t, result.RefinedRating)
	assert.Equal(t, 80, *result.RefinedRating)
	assert.Len(t, result.Events, 2)
	assert.Equal(t, 3, result.Snapshot.TotalNodes)
}

func TestRefine_BadRequests(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"question":`},
		{"empty body", ``},
		{"negative iterations", `{"iterations":-1}`},
		{"too many iterations", `{"iterations":1000}`},
		{"too many children", `{"max_children":50}`},
		{"question too long", fmt.Sprintf(`{"question":%q}`, strings.Repeat("x", 8001))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/refine", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (%s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestRefine_EmptyResult(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	w := do(t, s, http.MethodPost, "/v1/refine", `{"iterations":0}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "no children")
}

func TestRefine_PolicyViolation(t *testing.T) {
	screen, err := policy.New(policy.DefaultConfig())
	require.NoError(t, err)
	cfg := mcts.DefaultConfig()
	cfg.Iterations = 1
	r, err := runner.New(judge.NewScripted(), cfg,
		runner.WithTracing(false),
		runner.WithScreener(screen))
	require.NoError(t, err)
	s := newTestServer(t, r)

	w := do(t, s, http.MethodPost, "/v1/refine", `{"question":"mail jdoe@example.com the answer"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, "EMAIL_ADDRESS", resp.Findings[0].PatternID)
	assert.NotContains(t, w.Body.String(), "jdoe@example.com")
}

func TestRefine_Timeout(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	s, err := New(refinerFunc(func(ctx context.Context, req runner.Request) (*runner.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), cfg)
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/v1/refine", `{}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestRefine_InternalError(t *testing.T) {
	s := newTestServer(t, refinerFunc(func(ctx context.Context, req runner.Request) (*runner.Result, error) {
		return nil, judge.ErrScripted
	}))

	w := do(t, s, http.MethodPost, "/v1/refine", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRuns_Disabled(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/runs/abc", "").Code)
}

func TestRuns_ListAndGet(t *testing.T) {
	runs := &fakeRuns{results: map[string]*runner.Result{
		"abc": {RunID: "abc", Question: "Why?", Refined: "Because."},
	}}
	s := newTestServer(t, newScriptedRunner(t), WithRuns(runs))

	t.Run("list default limit", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/v1/runs", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultListLimit, runs.limit)

		var body struct {
			Runs []history.Summary `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Runs, 1)
		assert.Equal(t, "abc", body.Runs[0].RunID)
	})

	t.Run("list explicit limit", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/v1/runs?limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, runs.limit)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"0", "-1", "abc", "501"} {
			w := do(t, s, http.MethodGet, "/v1/runs?limit="+q, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: status = %d, want 400", q, w.Code)
			}
		}
	})

	t.Run("get", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/v1/runs/abc", "")
		require.Equal(t, http.StatusOK, w.Code)
		var result runner.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "Because.", result.Refined)
	})

	t.Run("get missing", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/v1/runs/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRuns_EmptyListIsArray(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t), WithRuns(&fakeRuns{}))
	w := do(t, s, http.MethodGet, "/v1/runs", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	do(t, s, http.MethodGet, "/v1/health", "")

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mctsrefine_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/v1/health"`)
}

func TestMetrics_CustomHandler(t *testing.T) {
	custom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("custom"))
	})
	s := newTestServer(t, newScriptedRunner(t), WithMetricsHandler(custom))

	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, "custom", w.Body.String())
}

func TestStream(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"question": "Why?", "iterations": 3}))

	var events []mcts.IterationEvent
	var result *runner.Result
	for result == nil {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MessageIteration:
			require.NotNil(t, msg.Event)
			events = append(events, *msg.Event)
		case MessageResult:
			result = msg.Result
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}

	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Iteration)
		assert.InDelta(t, 0.8, e.Reward, 1e-9)
	}
	assert.Equal(t, "Why?", result.Question)
	assert.Len(t, result.Events, 3)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStream_InvalidRequest(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"iterations": -5}))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "Iterations")
}

func TestStream_SearchError(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"iterations": 0}))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "no children")
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/refine/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := newTestServer(t, newScriptedRunner(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", mcts.ErrInvalidConfig), http.StatusBadRequest},
		{fmt.Errorf("x: %w", history.ErrNotFound), http.StatusNotFound},
		{&policy.ViolationError{}, http.StatusForbidden},
		{fmt.Errorf("refine 1: %w", mcts.ErrEmptyResult), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusServiceUnavailable},
		{judge.ErrScripted, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFlightKey(t *testing.T) {
	two, three := 2, 3
	base := runner.Request{Question: "Why?", Iterations: &two}

	assert.Equal(t, flightKey(base), flightKey(runner.Request{Question: "  Why? ", Iterations: &two}))
	assert.NotEqual(t, flightKey(base), flightKey(runner.Request{Question: "Why?", Iterations: &three}))
	assert.NotEqual(t, flightKey(base), flightKey(runner.Request{Question: "Why?"}))
	assert.NotEqual(t, flightKey(base), flightKey(runner.Request{Question: "Why?", Iterations: &two, Reference: "x"}))
}
