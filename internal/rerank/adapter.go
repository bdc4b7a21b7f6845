// Package rerank implements C5: cross-encoder reranking of the candidates
// C4 fused, via the rerankclient REST contract, truncated to
// RERANK_TOP_K. Falls back to retrieval-score ordering with a warning if
// the reranker call fails, per spec.md §4.3.
package rerank

import (
	"context"
	"sort"

	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/rerankclient"
)

// DefaultTopK is spec.md §6's RERANK_TOP_K default.
const DefaultTopK = 5

type Client interface {
	Rerank(ctx context.Context, query string, documents []string) ([]rerankclient.Score, error)
}

type Adapter struct {
	client Client
	topK   int
}

func New(client Client, topK int) *Adapter {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Adapter{client: client, topK: topK}
}

// Result is the reranked, truncated document set plus a flag noting
// whether the reranker call failed and the fallback ordering was used.
type Result struct {
	Documents      []model.Document
	FallbackOrder  bool
	FallbackReason string
}

func (a *Adapter) Rerank(ctx context.Context, query string, docs []model.Document) Result {
	if len(docs) == 0 {
		return Result{Documents: docs}
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	scores, err := a.client.Rerank(ctx, query, texts)
	if err != nil {
		return a.fallback(docs, "reranker_unavailable: "+err.Error())
	}
	if len(scores) != len(docs) {
		return a.fallback(docs, "reranker_returned_mismatched_count")
	}

	out := make([]model.Document, len(docs))
	copy(out, docs)
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(out) {
			return a.fallback(docs, "reranker_returned_invalid_index")
		}
		out[s.Index].RerankScore = s.Score
		out[s.Index].CombinedScore = (out[s.Index].RetrievalScore + s.Score) / 2
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})

	return Result{Documents: truncate(out, a.topK)}
}

func (a *Adapter) fallback(docs []model.Document, reason string) Result {
	out := make([]model.Document, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RetrievalScore > out[j].RetrievalScore
	})
	return Result{
		Documents:      truncate(out, a.topK),
		FallbackOrder:  true,
		FallbackReason: reason,
	}
}

func truncate(docs []model.Document, topK int) []model.Document {
	if topK < len(docs) {
		return docs[:topK]
	}
	return docs
}
