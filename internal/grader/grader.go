// Package grader implements C6: a single batch LLM call that grades every
// reranked document for relevance, with a recall-preserving fallback on
// parse failure (spec.md §4.4, and an Open Question this repo resolves
// explicitly — see DESIGN.md).
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ragbox/core-rag/internal/llm"
	"github.com/ragbox/core-rag/internal/model"
)

// RelevanceThreshold is the minimum grading_confidence for a document to be
// kept, per spec.md §4.4.
const RelevanceThreshold = 0.5

type Grader struct {
	provider llm.Provider
	model    string
}

func New(provider llm.Provider, model string) *Grader {
	return &Grader{provider: provider, model: model}
}

type gradeEntry struct {
	DocID      int     `json:"doc_id"`
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Result is the graded document set plus any warning raised while grading.
type Result struct {
	Documents []model.Document
	Warning   string
}

// Grade assigns GradingRelevant/GradingConfidence/GradingReason to every
// document via one round-trip LLM call, regardless of document count.
func (g *Grader) Grade(ctx context.Context, query string, docs []model.Document) (Result, error) {
	if len(docs) == 0 {
		return Result{Documents: docs}, nil
	}

	resp, err := g.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildUserPrompt(query, docs)},
	}, g.model, 0.0, 2048)
	if err != nil {
		return Result{}, fmt.Errorf("grader.Grade: %w", err)
	}

	entries, parseErr := parseEntries(resp.Text)
	if parseErr != nil {
		return recallPreservingFallback(docs), nil
	}

	byID := make(map[int]gradeEntry, len(entries))
	for _, e := range entries {
		byID[e.DocID] = e
	}

	out := make([]model.Document, len(docs))
	copy(out, docs)
	for i := range out {
		e, ok := byID[i]
		if !ok {
			e = gradeEntry{DocID: i, Relevant: false, Confidence: 0, Reason: "missing"}
		}
		out[i].GradingRelevant = e.Relevant
		out[i].GradingConfidence = clamp01(e.Confidence)
		out[i].GradingReason = e.Reason
	}

	return Result{Documents: out}, nil
}

// Relevant returns the subset of graded documents with
// grading_relevant && grading_confidence >= RelevanceThreshold.
func Relevant(docs []model.Document) []model.Document {
	var out []model.Document
	for _, d := range docs {
		if d.GradingRelevant && d.GradingConfidence >= RelevanceThreshold {
			out = append(out, d)
		}
	}
	return out
}

func recallPreservingFallback(docs []model.Document) Result {
	out := make([]model.Document, len(docs))
	copy(out, docs)
	for i := range out {
		out[i].GradingRelevant = true
		out[i].GradingConfidence = 0.5
		out[i].GradingReason = "grader_parse_failure"
	}
	return Result{Documents: out, Warning: "grader_parse_failure"}
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

func parseEntries(text string) ([]gradeEntry, error) {
	candidate := strings.TrimSpace(text)
	if m := jsonArrayPattern.FindString(candidate); m != "" {
		candidate = m
	}
	var entries []gradeEntry
	if err := json.Unmarshal([]byte(candidate), &entries); err != nil {
		return nil, fmt.Errorf("grader: parse: %w", err)
	}
	return entries, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

const systemPrompt = `You are a strict relevance grader for a retrieval pipeline. Given a user query and a numbered list of candidate passages, decide for each passage whether it is relevant to answering the query.

Respond with ONLY a JSON array, one element per passage, in this exact shape:
[{"doc_id": 0, "relevant": true, "confidence": 0.9, "reason": "short justification"}, ...]

doc_id is the passage's 0-based index. confidence is a float between 0 and 1. Do not include any text outside the JSON array.`

func buildUserPrompt(query string, docs []model.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n\n", i, d.Text)
	}
	return b.String()
}
