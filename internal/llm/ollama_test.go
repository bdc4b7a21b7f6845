package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProvider_Chat_ReturnsTextAndTokenCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3" {
			t.Errorf("model = %q, want llama3", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Message:         struct{ Content string `json:"content"` }{Content: "hi there"},
			PromptEvalCount: 5,
			EvalCount:       2,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, "llama3", 0.2, 100)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi there")
	}
	if resp.InputTokens != 5 || resp.OutputTokens != 2 {
		t.Errorf("token counts = %d/%d, want 5/2", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaProvider_Chat_DefaultsBaseURLWhenEmpty(t *testing.T) {
	p := NewOllamaProvider("")
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default localhost", p.baseURL)
	}
}

func TestOllamaProvider_Chat_PropagatesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Error: "model not found"})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, "missing", 0, 0)
	if err == nil {
		t.Fatal("expected an error when the server reports a model error")
	}
}

func TestOllamaProvider_Chat_EmptyContentIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, "llama3", 0, 0)
	if err == nil {
		t.Fatal("expected an error for an empty response")
	}
}

func TestOllamaProvider_Chat_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, "llama3", 0, 0)
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
