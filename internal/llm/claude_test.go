package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func newTestClaudeProvider(baseURL string) *ClaudeProvider {
	return &ClaudeProvider{
		client: anthropic.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
		),
	}
}

func TestClaudeProvider_Chat_ReturnsTextAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_1",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "paris"},
			},
			"model":         "claude-3-5-sonnet-latest",
			"stop_reason":   "end_turn",
			"usage":         map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	p := newTestClaudeProvider(srv.URL)
	resp, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "answer briefly"},
		{Role: RoleUser, Content: "capital of france?"},
	}, "claude-3-5-sonnet-latest", 0.1, 256)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Text != "paris" {
		t.Errorf("Text = %q, want %q", resp.Text, "paris")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("token counts = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestClaudeProvider_Chat_DefaultsMaxTokensWhenUnset(t *testing.T) {
	var gotMaxTokens int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if mt, ok := body["max_tokens"].(float64); ok {
			gotMaxTokens = int64(mt)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "msg_1",
			"type":    "message",
			"role":    "assistant",
			"content": []map[string]any{{"type": "text", "text": "ok"}},
			"model":   "claude-3-5-sonnet-latest",
			"usage":   map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	p := newTestClaudeProvider(srv.URL)
	if _, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "claude-3-5-sonnet-latest", 0, 0); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if gotMaxTokens != 4096 {
		t.Errorf("max_tokens sent = %d, want default 4096", gotMaxTokens)
	}
}
