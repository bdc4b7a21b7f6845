// Package api implements C13: the intake surface over the pipeline
// runtime — a streaming SSE endpoint and a buffered non-streaming
// endpoint, both driving the same pipeline.Runtime.Run call. Adapted from
// the donor's internal/handler/chat.go request-decoding/validation shape,
// generalized from that handler's single hardcoded SSE protocol to the
// two transports C11's Sink abstraction supports.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ragbox/core-rag/internal/events"
	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/pipeline"
	"github.com/ragbox/core-rag/internal/querycache"
)

// MaxBodyBytes bounds the inbound request body, mirroring the donor's
// defensive body-size cap on untrusted input.
const MaxBodyBytes = 1 << 20 // 1MiB

type Handler struct {
	runtime  *pipeline.Runtime
	cache    *querycache.Cache
	upgrader websocket.Upgrader
}

func New(runtime *pipeline.Runtime, cache *querycache.Cache) *Handler {
	return &Handler{
		runtime: runtime,
		cache:   cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

type chatRequestBody struct {
	Query          string                        `json:"query"`
	ThreadID       string                        `json:"threadId,omitempty"`
	Filters        map[string]model.FilterValue  `json:"filters,omitempty"`
	Context        *model.RuntimeContext         `json:"context,omitempty"`
	TopK           *int                          `json:"topK,omitempty"`
}

// decodeRequest parses and minimally validates the request envelope common
// to every transport. A decode failure is answered with HTTP 400 and never
// reaches the pipeline; the callers answer an empty query the same way.
func decodeRequest(r *http.Request) (model.QueryRequest, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return model.QueryRequest{}, err
	}

	rc := model.DefaultRuntimeContext()
	if body.Context != nil {
		rc = *body.Context
		if rc.LanguagePreference == "" {
			rc.LanguagePreference = model.LangAuto
		}
		if rc.ExpertiseLevel == "" {
			rc.ExpertiseLevel = model.ExpertiseGeneral
		}
		if rc.ResponseStyle == "" {
			rc.ResponseStyle = model.StyleBalanced
		}
	}

	return model.QueryRequest{
		QueryText:      body.Query,
		ThreadID:       body.ThreadID,
		Filters:        body.Filters,
		RuntimeContext: rc,
		TopK:           body.TopK,
	}, nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Stream handles POST /v1/chat/stream: the request body is decoded, the
// query is non-empty (else HTTP 400, malformed request), and the pipeline
// runs with an SSE sink. Every pipeline-internal failure is carried inside
// the event stream itself, never as an HTTP error status, per spec.md §7.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.QueryText == "" {
		writeJSONError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	sink, err := events.NewSSESink(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	seq := events.NewSequencer(sink)

	_ = h.runtime.Run(r.Context(), req, seq)
}

// WebSocket handles a WebSocket upgrade, reading exactly one query per
// connection and driving the pipeline with a WebSocketSink, per spec.md
// §6's transport-agnostic event contract.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var body chatRequestBody
	if err := conn.ReadJSON(&body); err != nil {
		return
	}
	if body.Query == "" {
		_ = conn.WriteJSON(map[string]string{"error": "query must not be empty"})
		return
	}

	rc := model.DefaultRuntimeContext()
	if body.Context != nil {
		rc = *body.Context
	}
	req := model.QueryRequest{
		QueryText:      body.Query,
		ThreadID:       body.ThreadID,
		Filters:        body.Filters,
		RuntimeContext: rc,
		TopK:           body.TopK,
	}

	sink := events.NewSequencer(events.NewWebSocketSink(conn))
	_ = h.runtime.Run(r.Context(), req, sink)
}

// Ask handles a non-streaming POST /v1/query: the pipeline runs against a
// BufferSink and the terminal event's payload becomes the HTTP response
// body. Per spec.md §7, pipeline-internal failures return HTTP 200 with an
// error body — HTTP 4xx is reserved for malformed requests that never
// reach the pipeline.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.QueryText == "" {
		writeJSONError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	if h.cache != nil {
		if cached, ok := h.cache.Get(req.ThreadID, req.QueryText, req.Filters); ok {
			writeGenerationJSON(w, http.StatusOK, cached)
			return
		}
	}

	buf := &events.BufferSink{}
	if err := h.runtime.Run(r.Context(), req, buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "pipeline failed to start")
		return
	}

	terminal, ok := buf.Terminal()
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "pipeline produced no terminal event")
		return
	}

	switch terminal.EventType {
	case model.EventGeneration:
		data, ok := terminal.Data.(model.GenerationData)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "malformed generation payload")
			return
		}
		if h.cache != nil {
			h.cache.Set(req.ThreadID, req.QueryText, req.Filters, data)
		}
		writeGenerationJSON(w, http.StatusOK, data)
	case model.EventError:
		data, _ := terminal.Data.(model.ErrorData)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    data.Category,
			"message":  data.Message,
			"threadId": req.ThreadID,
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, "unexpected terminal event")
	}
}

func writeGenerationJSON(w http.ResponseWriter, status int, data model.GenerationData) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// NewThreadID is exposed for callers that need to mint a thread_id before
// the pipeline runs.
func NewThreadID() string { return uuid.NewString() }
