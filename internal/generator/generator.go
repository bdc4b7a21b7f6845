// Package generator implements C7: answer synthesis via a prompt factory
// that composes language, query class, and expertise axes, packs sources
// through the C1 budgeter, and parses the model's structured JSON reply.
// Adapted from the donor's internal/service/generator.go
// (buildSystemPrompt/buildUserPrompt/parseGenerationResponse), generalized
// from file-based personas to the spec's enumerated-axis prompt factory.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragbox/core-rag/internal/llm"
	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/tokenizer"
)

type Generator struct {
	provider llm.Provider
	model    string
	est      *tokenizer.Estimator
	budget   tokenizer.ModelBudget
}

func New(provider llm.Provider, modelName string, est *tokenizer.Estimator) *Generator {
	return &Generator{
		provider: provider,
		model:    modelName,
		est:      est,
		budget:   tokenizer.BudgetFor(modelName),
	}
}

// Result is one generation call's output.
type Result struct {
	Answer          string
	Citations       []model.Citation
	ContextMetadata model.ContextMetadata
	Truncated       bool
}

// Generate synthesizes an answer from the graded, relevant documents,
// the conversation history, and the runtime context's language/expertise/
// style preferences.
func (g *Generator) Generate(
	ctx context.Context,
	query string,
	lang model.Language,
	relevant []model.Document,
	history []model.Message,
	rc model.RuntimeContext,
) (Result, error) {
	docTexts := make([]string, len(relevant))
	for i, d := range relevant {
		docTexts[i] = d.Text
	}

	systemPrompt := buildSystemPrompt(lang, classifyQuery(query), rc)
	fixedTokens := g.est.Count(systemPrompt) + g.est.Count(query)

	packed := tokenizer.Pack(g.est, g.model, fixedTokens, docTexts)

	var messages []llm.Message
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildSourcesBlock(relevant, packed)})

	resp, err := g.provider.Chat(ctx, messages, g.model, 0.3, g.budget.Reserve)
	if err != nil {
		return Result{}, fmt.Errorf("generator.Generate: %w", err)
	}

	answer, citations := parseResponse(resp.Text, relevant, rc.EnableCitations)
	outputTokens := g.est.Count(answer)

	cm := model.ContextMetadata{
		ModelName:           g.model,
		ContextWindow:       g.budget.Window,
		TokensInput:         packed.TokensInput,
		TokensOutput:        outputTokens,
		TokensReserved:      g.budget.Reserve,
		ContextUsagePercent: packed.ContextUsagePercent,
		DocumentsRetrieved:  len(relevant),
		DocumentsIncluded:   len(packed.IncludedIndices) + len(packed.TruncatedIndices),
		HasCitations:        len(citations) > 0,
	}

	return Result{Answer: answer, Citations: citations, ContextMetadata: cm, Truncated: packed.Truncated}, nil
}

// queryClass is a coarse heuristic classification of the query's intent,
// used to vary the system prompt's instructions.
type queryClass string

const (
	classDefinition queryClass = "definition"
	classComparison queryClass = "comparison"
	classHowTo      queryClass = "how_to"
	classList       queryClass = "list"
	classAnalytical queryClass = "analytical"
	classFactual    queryClass = "factual"
)

func classifyQuery(query string) queryClass {
	lower := strings.ToLower(query)
	switch {
	case strings.HasPrefix(lower, "what is") || strings.HasPrefix(lower, "define") || strings.Contains(lower, "meaning of"):
		return classDefinition
	case strings.Contains(lower, " vs ") || strings.Contains(lower, "difference between") || strings.Contains(lower, "compare"):
		return classComparison
	case strings.HasPrefix(lower, "how to") || strings.HasPrefix(lower, "how do") || strings.HasPrefix(lower, "how can"):
		return classHowTo
	case strings.HasPrefix(lower, "list") || strings.Contains(lower, "examples of") || strings.Contains(lower, "types of"):
		return classList
	case strings.Contains(lower, "why") || strings.Contains(lower, "analyze") || strings.Contains(lower, "impact of"):
		return classAnalytical
	default:
		return classFactual
	}
}

func languageInstruction(lang model.Language) string {
	switch lang {
	case model.LangRussian:
		return "Respond in Russian."
	case model.LangUzbek:
		return "Respond in Uzbek (Latin script)."
	default:
		return "Respond in English."
	}
}

func lengthHint(style model.ResponseStyle) string {
	switch style {
	case model.StyleConcise:
		return "Keep the answer brief: a few sentences at most."
	case model.StyleDetailed:
		return "Provide a thorough, detailed answer covering all relevant aspects."
	default:
		return "Provide a balanced answer: complete but not verbose."
	}
}

func classInstruction(qc queryClass) string {
	switch qc {
	case classDefinition:
		return "The user wants a definition. Lead with a precise one-sentence definition, then elaborate."
	case classComparison:
		return "The user wants a comparison. Structure the answer around the key points of difference."
	case classHowTo:
		return "The user wants a procedure. Answer with clear, ordered steps."
	case classList:
		return "The user wants a list. Use a bulleted or numbered list of items."
	case classAnalytical:
		return "The user wants analysis. Explain causes, implications, and tradeoffs, not just facts."
	default:
		return "Answer the factual question directly."
	}
}

func buildSystemPrompt(lang model.Language, qc queryClass, rc model.RuntimeContext) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(languageInstruction(lang))
	b.WriteString(" ")
	b.WriteString(lengthHint(rc.ResponseStyle))
	b.WriteString(" ")
	b.WriteString(classInstruction(qc))
	if rc.EnableCitations {
		b.WriteString(" Cite sources inline as [1], [2], ... referencing the numbered passages, including the source and page number when available.")
	} else {
		b.WriteString(" Do not include inline citation markers.")
	}
	if rc.ExpertiseLevel == model.ExpertiseBeginner {
		b.WriteString(" Explain any technical terms in plain language; assume the reader is new to the subject.")
	} else if rc.ExpertiseLevel == model.ExpertiseExpert {
		b.WriteString(" Assume the reader is a domain expert; do not over-explain basic concepts.")
	}
	return b.String()
}

const baseSystemPrompt = `You are a retrieval-augmented assistant. Only use the provided passages to answer — never speculate beyond them. If the passages do not contain enough information, say so explicitly rather than guessing.

Respond with JSON of this exact shape:
{"answer": "...", "citations": [{"index": 1, "documentId": "...", "source": "...", "pageNumber": 0, "excerpt": "...", "relevance": 0.9}]}`

func buildSourcesBlock(docs []model.Document, packed tokenizer.PackResult) string {
	var b strings.Builder
	b.WriteString("=== SOURCES ===\n")
	included := make(map[int]bool, len(packed.IncludedIndices))
	for _, i := range packed.IncludedIndices {
		included[i] = true
	}
	truncated := make(map[int]bool, len(packed.TruncatedIndices))
	for _, i := range packed.TruncatedIndices {
		truncated[i] = true
	}
	for i, d := range docs {
		text := d.Text
		if truncated[i] {
			text = packed.TruncatedText[i]
		} else if !included[i] {
			continue
		}
		fmt.Fprintf(&b, "[%d] (source: %s, page: %v)\n%s\n\n", i+1, d.Source(), d.Metadata[model.MetaPageNumber], text)
	}
	return b.String()
}

type responseJSON struct {
	Answer    string `json:"answer"`
	Citations []struct {
		Index      int     `json:"index"`
		DocumentID string  `json:"documentId"`
		Source     string  `json:"source"`
		PageNumber int     `json:"pageNumber"`
		Excerpt    string  `json:"excerpt"`
		Relevance  float64 `json:"relevance"`
	} `json:"citations"`
}

func parseResponse(raw string, docs []model.Document, enableCitations bool) (string, []model.Citation) {
	cleaned := stripCodeFences(raw)

	var parsed responseJSON
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return raw, nil
	}
	if !enableCitations {
		return parsed.Answer, nil
	}

	citations := make([]model.Citation, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		if c.Index < 1 || c.Index > len(docs) {
			continue
		}
		citations = append(citations, model.Citation{
			DocumentID: c.DocumentID,
			Source:     c.Source,
			PageNumber: c.PageNumber,
			Excerpt:    c.Excerpt,
			Relevance:  c.Relevance,
			Index:      c.Index,
		})
	}
	return parsed.Answer, citations
}

func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	if len(lines) < 3 {
		return cleaned
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
