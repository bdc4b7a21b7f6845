package rerank

import (
	"context"
	"fmt"
	"testing"

	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/rerankclient"
)

func makeBenchScoredDocs(n int) ([]model.Document, []rerankclient.Score) {
	docs := make([]model.Document, n)
	scores := make([]rerankclient.Score, n)
	for i := 0; i < n; i++ {
		docs[i] = model.Document{ID: fmt.Sprintf("doc-%d", i), Text: "passage text"}
		scores[i] = rerankclient.Score{Index: n - i - 1, Score: float64(n-i) / float64(n)}
	}
	return docs, scores
}

func BenchmarkRerank_20Candidates(b *testing.B) {
	docs, scores := makeBenchScoredDocs(20)
	client := fakeClient{scores: scores}
	a := New(client, 5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Rerank(context.Background(), "query", docs)
	}
}
