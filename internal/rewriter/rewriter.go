// Package rewriter implements C8: a single terse LLM call that reformulates
// a query which failed grading, with the validation rules of spec.md §4.7.
package rewriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragbox/core-rag/internal/llm"
	"github.com/ragbox/core-rag/internal/model"
)

type Rewriter struct {
	provider llm.Provider
	model    string
}

func New(provider llm.Provider, model string) *Rewriter {
	return &Rewriter{provider: provider, model: model}
}

// Rewrite reformulates originalQuery given the top failed documents' short
// snippets. It returns originalQuery unchanged (with ok=false) if the
// model's rewrite fails validation — non-empty, at most twice the original
// length, and not identical to the original.
func (r *Rewriter) Rewrite(ctx context.Context, originalQuery string, failedDocs []model.Document) (rewritten string, ok bool, err error) {
	resp, callErr := r.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildPrompt(originalQuery, failedDocs)},
	}, r.model, 0.5, 256)
	if callErr != nil {
		return originalQuery, false, fmt.Errorf("rewriter.Rewrite: %w", callErr)
	}

	candidate := strings.TrimSpace(stripQuotes(resp.Text))
	if !valid(candidate, originalQuery) {
		return originalQuery, false, nil
	}
	return candidate, true, nil
}

func valid(candidate, original string) bool {
	if candidate == "" {
		return false
	}
	if strings.EqualFold(candidate, original) {
		return false
	}
	if len(candidate) > 2*len(original) {
		return false
	}
	return true
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	return s
}

const systemPrompt = `You reformulate search queries that failed to retrieve relevant results. Given the original query and snippets of the passages that were judged irrelevant, produce ONE reformulated query in the same language as the original that is more likely to retrieve relevant passages. Reply with ONLY the reformulated query, no explanation, no quotes.`

func buildPrompt(query string, failedDocs []model.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n", query)
	if len(failedDocs) > 0 {
		b.WriteString("\nIrrelevant passages retrieved:\n")
		for i, d := range failedDocs {
			if i >= 3 {
				break
			}
			snippet := d.Text
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			fmt.Fprintf(&b, "- %s\n", snippet)
		}
	}
	return b.String()
}
