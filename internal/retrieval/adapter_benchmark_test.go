package retrieval

import (
	"fmt"
	"testing"

	"github.com/ragbox/core-rag/internal/model"
)

func makeBenchDocuments(n int, prefix string) []model.Document {
	docs := make([]model.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = model.Document{
			ID:   fmt.Sprintf("%s-doc-%d", prefix, i%(n/2+1)),
			Text: fmt.Sprintf("passage %d discussing clause obligations and rights", i),
		}
	}
	return docs
}

func BenchmarkReciprocalRankFusion_50Candidates(b *testing.B) {
	dense := makeBenchDocuments(50, "dense")
	lexical := makeBenchDocuments(50, "dense") // overlapping IDs, realistic fusion case
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reciprocalRankFusion(dense, lexical)
	}
}

func BenchmarkApplyLanguageBoost_50Documents(b *testing.B) {
	docs := makeBenchDocuments(50, "doc")
	for i := range docs {
		docs[i].Metadata = map[string]any{model.MetaLanguage: "en"}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cp := make([]model.Document, len(docs))
		copy(cp, docs)
		applyLanguageBoost(cp, model.LangEnglish)
	}
}
