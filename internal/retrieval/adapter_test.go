package retrieval

import (
	"testing"

	"github.com/ragbox/core-rag/internal/model"
)

func TestReciprocalRankFusion_PrefersDocInBothLists(t *testing.T) {
	dense := []model.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	lexical := []model.Document{{ID: "c"}, {ID: "d"}, {ID: "a"}}

	fused := reciprocalRankFusion(dense, lexical)

	scores := make(map[string]float64, len(fused))
	for _, d := range fused {
		scores[d.ID] = d.RetrievalScore
	}

	// "a" appears in both lists (rank 0 dense, rank 2 lexical) and "c"
	// appears in both (rank 2 dense, rank 0 lexical) - both should outscore
	// "b" and "d", which appear in only one list each.
	if scores["a"] <= scores["b"] {
		t.Errorf("a (in both lists) should outscore b (dense-only): a=%v b=%v", scores["a"], scores["b"])
	}
	if scores["c"] <= scores["d"] {
		t.Errorf("c (in both lists) should outscore d (lexical-only): c=%v d=%v", scores["c"], scores["d"])
	}
	if len(fused) != 4 {
		t.Errorf("len(fused) = %d, want 4 unique docs", len(fused))
	}
}

func TestReciprocalRankFusion_PreservesTextFromWhicheverListHasIt(t *testing.T) {
	dense := []model.Document{{ID: "a", Text: ""}}
	lexical := []model.Document{{ID: "a", Text: "full passage text"}}

	fused := reciprocalRankFusion(dense, lexical)

	if len(fused) != 1 || fused[0].Text != "full passage text" {
		t.Errorf("expected fused doc to carry the lexical list's text, got %+v", fused)
	}
}

func TestApplyLanguageBoost_BoostsMatchingLanguageOnly(t *testing.T) {
	docs := []model.Document{
		{ID: "en-doc", RetrievalScore: 1.0, Metadata: map[string]any{model.MetaLanguage: "en"}},
		{ID: "ru-doc", RetrievalScore: 1.0, Metadata: map[string]any{model.MetaLanguage: "ru"}},
	}

	applyLanguageBoost(docs, model.LangEnglish)

	if docs[0].RetrievalScore != 1.0*SameLanguageBoost {
		t.Errorf("english doc RetrievalScore = %v, want %v", docs[0].RetrievalScore, SameLanguageBoost)
	}
	if docs[1].RetrievalScore != 1.0 {
		t.Errorf("russian doc RetrievalScore = %v, want unboosted 1.0", docs[1].RetrievalScore)
	}
}

func TestApplyLanguageBoost_NoopForUnknownOrAutoQueryLanguage(t *testing.T) {
	docs := []model.Document{{ID: "a", RetrievalScore: 1.0, Metadata: map[string]any{model.MetaLanguage: "en"}}}

	applyLanguageBoost(docs, model.LangUnknown)
	if docs[0].RetrievalScore != 1.0 {
		t.Errorf("LangUnknown should not boost, got %v", docs[0].RetrievalScore)
	}

	applyLanguageBoost(docs, model.LangAuto)
	if docs[0].RetrievalScore != 1.0 {
		t.Errorf("LangAuto should not boost, got %v", docs[0].RetrievalScore)
	}
}

func TestTokenizeForMatch_StripsPunctuationAndShortTokens(t *testing.T) {
	got := tokenizeForMatch("What is RAG? (Retrieval-Augmented Generation)")
	want := []string{"what", "is", "rag", "retrieval-augmented", "generation"} // punctuation is only trimmed at token edges, not mid-token

	if len(got) != len(want) {
		t.Fatalf("tokenizeForMatch() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, tok := range got {
		if len(tok) < 2 {
			t.Errorf("tokenizeForMatch kept a token shorter than 2 runes: %q", tok)
		}
	}
	if len(got) == 0 {
		t.Fatal("expected at least one token")
	}
}

func TestTermOverlapCount_CountsCaseInsensitiveSubstringMatches(t *testing.T) {
	terms := []string{"rag", "pipeline"}
	count := termOverlapCount("A RAG pipeline fuses dense and lexical search.", terms)
	if count != 2 {
		t.Errorf("termOverlapCount = %d, want 2", count)
	}
}

func TestBuildFilter_EmptyFiltersReturnsNilWithNoError(t *testing.T) {
	f, err := buildFilter(nil)
	if err != nil || f != nil {
		t.Errorf("buildFilter(nil) = (%v, %v), want (nil, nil)", f, err)
	}
}

func TestBuildFilter_RejectsNonStringInValues(t *testing.T) {
	_, err := buildFilter(map[string]model.FilterValue{
		"doc_id": {In: []any{1, 2, 3}},
	})
	if err == nil {
		t.Error("expected an error for non-string \"in\" filter values")
	}
}
