package rerankclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerank_ReturnsScoresFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "capital of france" {
			t.Errorf("query = %q, want %q", req.Query, "capital of france")
		}
		json.NewEncoder(w).Encode([]Score{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.1}})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	scores, err := c.Rerank(context.Background(), "capital of france", []string{"doc a", "doc b"})
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("len(scores) = %d, want 2", len(scores))
	}
	if scores[0].Index != 1 || scores[0].Score != 0.9 {
		t.Errorf("scores[0] = %+v, want {Index:1 Score:0.9}", scores[0])
	}
}

func TestRerank_EmptyDocumentsIsNoop(t *testing.T) {
	c := New("http://unused", nil)
	scores, err := c.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if scores != nil {
		t.Errorf("scores = %v, want nil", scores)
	}
}

func TestRerank_PropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if _, err := c.Rerank(context.Background(), "query", []string{"doc"}); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestPing_SucceedsWhenServiceResponds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Score{{Index: 0, Score: 1}})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestPing_FailsWhenServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected Ping() to fail when the service is unavailable")
	}
}
