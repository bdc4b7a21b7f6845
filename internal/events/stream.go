// Package events implements C11: encoding the pipeline runtime's lifecycle
// events onto a half-duplex transport. The SSE encoder is grounded on the
// donor's internal/handler/chat.go sendEvent helper
// (fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ...); f.Flush()), generalized
// from ad hoc per-call event names/payloads to the strict node-lifecycle
// ordering contract of spec.md §4.11. A gorilla/websocket transport is
// offered as the other half-duplex option spec.md §6 allows.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ragbox/core-rag/internal/model"
)

// Sink receives one Event at a time, in the strict order spec.md §4.11
// mandates: thread_created (if new), then node_start/node_end pairs per
// node (with warning events interleaved), then exactly one terminal
// generation or error event.
type Sink interface {
	Send(evt model.Event) error
}

// SSESink writes Server-Sent Events, flushing after each frame.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink prepares w for event-stream output. Returns an error if w does
// not support flushing (required for a pull-based stream).
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("events: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(evt model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events.SSESink.Send: encode: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", evt.EventType, data); err != nil {
		return fmt.Errorf("events.SSESink.Send: write: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WebSocketSink writes one JSON text frame per event.
type WebSocketSink struct {
	conn *websocket.Conn
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

func (s *WebSocketSink) Send(evt model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events.WebSocketSink.Send: encode: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("events.WebSocketSink.Send: write: %w", err)
	}
	return nil
}

// BufferSink accumulates events in memory, used by the non-streaming
// ask() entrypoint (C13) which buffers the whole sequence and returns only
// the terminal payload.
type BufferSink struct {
	Events []model.Event
}

func (s *BufferSink) Send(evt model.Event) error {
	s.Events = append(s.Events, evt)
	return nil
}

// Terminal returns the sequence's single terminal generation or error
// event, if one was sent.
func (s *BufferSink) Terminal() (model.Event, bool) {
	for _, e := range s.Events {
		if e.EventType == model.EventGeneration || e.EventType == model.EventError {
			return e, true
		}
	}
	return model.Event{}, false
}

// Sequencer assigns a monotonically increasing internal sequence number to
// every event before handing it to an underlying Sink, so consumers (and
// tests) can assert strict ordering even over an unordered transport.
type Sequencer struct {
	sink Sink
	next int
}

func NewSequencer(sink Sink) *Sequencer {
	return &Sequencer{sink: sink}
}

func (s *Sequencer) Send(evt model.Event) error {
	evt = evt.WithSeq(s.next)
	s.next++
	return s.sink.Send(evt)
}
