package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/rerankclient"
)

type fakeClient struct {
	scores []rerankclient.Score
	err    error
}

func (f fakeClient) Rerank(ctx context.Context, query string, documents []string) ([]rerankclient.Score, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func threeDocs() []model.Document {
	return []model.Document{
		{ID: "a", Text: "a", RetrievalScore: 0.5},
		{ID: "b", Text: "b", RetrievalScore: 0.9},
		{ID: "c", Text: "c", RetrievalScore: 0.1},
	}
}

func TestRerank_OrdersByCrossEncoderScoreDescending(t *testing.T) {
	client := fakeClient{scores: []rerankclient.Score{
		{Index: 0, Score: 0.2},
		{Index: 1, Score: 0.1},
		{Index: 2, Score: 0.9},
	}}
	a := New(client, 5)

	res := a.Rerank(context.Background(), "q", threeDocs())

	if res.FallbackOrder {
		t.Fatal("did not expect a fallback")
	}
	if res.Documents[0].ID != "c" {
		t.Errorf("Documents[0].ID = %q, want c (highest rerank score)", res.Documents[0].ID)
	}
}

func TestRerank_CombinedScoreIsMeanOfRetrievalAndRerankScores(t *testing.T) {
	client := fakeClient{scores: []rerankclient.Score{
		{Index: 0, Score: 0.3}, {Index: 1, Score: 0.3}, {Index: 2, Score: 0.3},
	}}
	a := New(client, 5)

	res := a.Rerank(context.Background(), "q", threeDocs())

	for _, d := range res.Documents {
		want := (d.RetrievalScore + d.RerankScore) / 2
		if d.CombinedScore != want {
			t.Errorf("doc %q: CombinedScore = %v, want mean %v", d.ID, d.CombinedScore, want)
		}
	}
}

func TestRerank_TruncatesToTopK(t *testing.T) {
	client := fakeClient{scores: []rerankclient.Score{
		{Index: 0, Score: 0.1}, {Index: 1, Score: 0.2}, {Index: 2, Score: 0.3},
	}}
	a := New(client, 2)

	res := a.Rerank(context.Background(), "q", threeDocs())
	if len(res.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want 2", len(res.Documents))
	}
}

func TestRerank_FallsBackOnClientError(t *testing.T) {
	a := New(fakeClient{err: errors.New("service down")}, 5)

	res := a.Rerank(context.Background(), "q", threeDocs())
	if !res.FallbackOrder {
		t.Error("expected FallbackOrder=true on client error")
	}
	if res.Documents[0].ID != "b" {
		t.Errorf("fallback should order by RetrievalScore desc: Documents[0].ID = %q, want b", res.Documents[0].ID)
	}
}

func TestRerank_FallsBackOnMismatchedScoreCount(t *testing.T) {
	a := New(fakeClient{scores: []rerankclient.Score{{Index: 0, Score: 0.5}}}, 5)

	res := a.Rerank(context.Background(), "q", threeDocs())
	if !res.FallbackOrder {
		t.Error("expected FallbackOrder=true on a mismatched score count")
	}
}

func TestRerank_FallsBackOnInvalidIndex(t *testing.T) {
	a := New(fakeClient{scores: []rerankclient.Score{
		{Index: 0, Score: 0.5}, {Index: 1, Score: 0.5}, {Index: 99, Score: 0.5},
	}}, 5)

	res := a.Rerank(context.Background(), "q", threeDocs())
	if !res.FallbackOrder {
		t.Error("expected FallbackOrder=true on an out-of-range index")
	}
}

func TestRerank_EmptyInputIsNoop(t *testing.T) {
	a := New(fakeClient{}, 5)
	res := a.Rerank(context.Background(), "q", nil)
	if len(res.Documents) != 0 || res.FallbackOrder {
		t.Errorf("Rerank(nil docs) = %+v, want empty non-fallback result", res)
	}
}
