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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/mctsrefine/services/refine/mcts"
	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Stream message types.
const (
	MessageIteration = "iteration"
	MessageResult    = "result"
	MessageError     = "error"
)

// StreamMessage is one server-to-client WebSocket frame.
type StreamMessage struct {
	Type   string               `json:"type"`
	Event  *mcts.IterationEvent `json:"event,omitempty"`
	Result *runner.Result       `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// handleStream reads one runner.Request from the socket, streams every
// iteration event while the search runs and finishes with the result.
//
// Events are buffered per connection; when a client falls behind the
// newest events are dropped rather than stalling the search. Closing the
// socket cancels the refinement.
func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	var req runner.Request
	if err := ws.ReadJSON(&req); err != nil {
		s.send(ws, StreamMessage{Type: MessageError, Error: "invalid request: " + err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.send(ws, StreamMessage{Type: MessageError, Error: err.Error()})
		return
	}

	ctx, cancel := s.runContext(c.Request.Context())
	defer cancel()

	// A hijacked connection has no request cancellation; a failed read
	// means the client is gone.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := make(chan mcts.IterationEvent, s.config.StreamBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		broken := false
		for e := range events {
			if broken {
				continue
			}
			if err := ws.WriteJSON(StreamMessage{Type: MessageIteration, Event: &e}); err != nil {
				broken = true
				cancel()
			}
		}
	}()

	req.OnIteration = func(e mcts.IterationEvent) {
		select {
		case events <- e:
		default:
			s.metrics.DroppedEvents.Inc()
		}
	}

	result, err := s.refiner.Run(ctx, req)
	close(events)
	<-writerDone

	if err != nil {
		s.send(ws, StreamMessage{Type: MessageError, Error: err.Error()})
		return
	}
	if s.send(ws, StreamMessage{Type: MessageResult, Result: result}) != nil {
		return
	}
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) send(ws *websocket.Conn, msg StreamMessage) error {
	err := ws.WriteJSON(msg)
	if err != nil {
		s.logger.Warn("failed to write websocket message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
	}
	return err
}
