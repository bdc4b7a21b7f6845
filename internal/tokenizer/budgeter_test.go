package tokenizer

import "testing"

func TestBudgetFor_KnownAndUnknownFamilies(t *testing.T) {
	claude := BudgetFor("claude-4")
	if claude.Window != 200_000 {
		t.Errorf("claude-4 Window = %d, want 200000", claude.Window)
	}

	unknown := BudgetFor("some-future-model")
	if unknown.Window != 8_192 {
		t.Errorf("unknown family Window = %d, want the conservative 8192 default", unknown.Window)
	}
}

func TestEstimator_Count_EmptyStringIsZero(t *testing.T) {
	est := NewEstimator()
	if got := est.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestEstimator_Count_LongerTextCountsMore(t *testing.T) {
	est := NewEstimator()
	short := est.Count("hello world")
	long := est.Count("hello world, this is a considerably longer passage of text with many more words in it")
	if long <= short {
		t.Errorf("Count(long)=%d should exceed Count(short)=%d", long, short)
	}
}

func TestEstimator_TruncateToTokens_ShrinksOverBudgetText(t *testing.T) {
	est := NewEstimator()
	text := "This is the first sentence. This is the second sentence. This is the third sentence that pushes things over budget."

	full := est.Count(text)
	truncated := est.TruncateToTokens(text, full-1)

	if len(truncated) >= len(text) {
		t.Errorf("expected a shorter string, got %d runes (original %d)", len(truncated), len(text))
	}
	if est.Count(truncated) > full-1 {
		t.Errorf("truncated text still exceeds the requested budget")
	}
}

func TestEstimator_TruncateToTokens_NoopWhenWithinBudget(t *testing.T) {
	est := NewEstimator()
	text := "short text"
	if got := est.TruncateToTokens(text, 10_000); got != text {
		t.Errorf("TruncateToTokens() = %q, want unchanged %q", got, text)
	}
}

func TestPack_IncludesDocumentsUntilBudgetExhausted(t *testing.T) {
	est := NewEstimator()
	docs := []string{
		"short document one",
		"short document two",
		"short document three",
	}

	res := Pack(est, "gpt-4", 0, docs)

	if len(res.IncludedIndices) == 0 {
		t.Fatal("expected at least one document to be included")
	}
	if res.TokensInput <= 0 {
		t.Error("expected a positive TokensInput")
	}
}

func TestPack_StopsWhenFixedPromptConsumesEntireBudget(t *testing.T) {
	est := NewEstimator()
	budget := BudgetFor("gpt-4")
	res := Pack(est, "gpt-4", budget.Window-budget.Reserve, []string{"anything"})

	if len(res.IncludedIndices) != 0 {
		t.Errorf("IncludedIndices = %v, want empty when no room remains", res.IncludedIndices)
	}
	if !res.Truncated {
		t.Error("expected Truncated=true when a document couldn't be packed at all")
	}
}
