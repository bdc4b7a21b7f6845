package querycache

import (
	"testing"
	"time"

	"github.com/ragbox/core-rag/internal/model"
)

func TestSetGet_RoundTrips(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	data := model.GenerationData{Answer: "42"}
	c.Set("thread-1", "what is the answer?", nil, data)

	got, ok := c.Get("thread-1", "what is the answer?", nil)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Answer != "42" {
		t.Errorf("Answer = %q, want 42", got.Answer)
	}
}

func TestGet_MissOnDifferentQuery(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("thread-1", "query a", nil, model.GenerationData{Answer: "a"})

	if _, ok := c.Get("thread-1", "query b", nil); ok {
		t.Error("expected a miss for a different query string")
	}
}

func TestGet_MissOnDifferentFilters(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("thread-1", "q", map[string]model.FilterValue{"doc_id": {Eq: "a"}}, model.GenerationData{Answer: "a"})

	if _, ok := c.Get("thread-1", "q", map[string]model.FilterValue{"doc_id": {Eq: "b"}}); ok {
		t.Error("expected a miss when filters differ")
	}
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Stop()

	c.Set("thread-1", "q", nil, model.GenerationData{Answer: "a"})
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("thread-1", "q", nil); ok {
		t.Error("expected the entry to have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the expired entry is evicted on read", c.Len())
	}
}
