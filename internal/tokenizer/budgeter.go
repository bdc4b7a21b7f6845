// Package tokenizer implements C1: token estimation and the per-model
// context budget packer. It replaces the donor's naive words*1.3 heuristic
// (internal/service/chunker.go in the donor tree) with a real BPE
// tokenizer, since spec.md §4.5 explicitly suggests a "BPE-style
// approximation" over a character-ratio guess.
package tokenizer

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ModelBudget is the context window and reserved-output allotment for one
// model family, per spec.md §4.5's table.
type ModelBudget struct {
	Window  int
	Reserve int
}

// MinDocTokens is the minimum remaining budget required to include a
// truncated document prefix.
const MinDocTokens = 128

var modelBudgets = map[string]ModelBudget{
	"claude-4": {Window: 200_000, Reserve: 4_000},
	"gpt-4o":   {Window: 128_000, Reserve: 4_000},
	"gpt-4":    {Window: 8_192, Reserve: 4_000},
	"llama-3.1": {Window: 128_000, Reserve: 4_000},
}

// BudgetFor returns the configured budget for a model family, or a safe
// conservative default (gpt-4's window) if the family is unrecognised.
func BudgetFor(modelFamily string) ModelBudget {
	if b, ok := modelBudgets[modelFamily]; ok {
		return b
	}
	return ModelBudget{Window: 8_192, Reserve: 4_000}
}

// Estimator counts tokens with a cached cl100k_base BPE encoding, falling
// back to a word-count heuristic if the encoder cannot be constructed (e.g.
// no network access to fetch the vocab on first use in an offline
// environment) — a strictly auxiliary degradation per spec.md §4.1's
// "falls back to defaults" policy for non-critical steps.
type Estimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewEstimator constructs an Estimator. Errors obtaining the BPE encoding
// are swallowed; Count then uses the heuristic fallback.
func NewEstimator() *Estimator {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Estimator{enc: enc}
}

// Count returns the estimated token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.mu.Lock()
	enc := e.enc
	e.mu.Unlock()
	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return (words*13 + 9) / 10 // ceil(words * 1.3)
}

// TruncateToTokens returns a prefix of text whose estimated token count is
// at most maxTokens, cut just after the last ".", "!" or "?" in the prefix
// when one exists past the halfway point, else at a word boundary.
func (e *Estimator) TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.Count(text) <= maxTokens {
		return text
	}

	words := strings.Fields(text)
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if e.Count(strings.Join(words[:mid], " ")) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	prefix := strings.Join(words[:lo], " ")

	if idx := lastSentenceBoundary(prefix); idx >= len(prefix)/2 {
		return strings.TrimSpace(prefix[:idx+1])
	}
	return strings.TrimSpace(prefix)
}

func lastSentenceBoundary(s string) int {
	best := -1
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			best = i
		}
	}
	return best
}

// Packable is the minimal document shape the packer needs.
type Packable interface {
	GetText() string
}

// PackResult describes what the budgeter decided to include.
type PackResult struct {
	IncludedIndices     []int
	TruncatedIndices    []int
	TruncatedText       map[int]string
	TokensInput         int
	DocumentsTotalTokens int
	ContextUsagePercent float64
	Truncated           bool
}

// Pack iterates documents in grading order (caller-supplied order is
// preserved — the grader's relevance ranking) and greedily includes
// documents until the budget is exhausted, per spec.md §4.5's packing
// policy: a document that fits entirely is included whole; one that
// doesn't but leaves at least MinDocTokens of room is included as a
// truncated, sentence-boundary-aligned prefix; otherwise packing stops.
func Pack(est *Estimator, modelFamily string, fixedPromptTokens int, docs []string) PackResult {
	budget := BudgetFor(modelFamily)
	available := budget.Window - budget.Reserve - fixedPromptTokens
	if available < 0 {
		available = 0
	}

	res := PackResult{TruncatedText: map[int]string{}}
	used := fixedPromptTokens

	for i, text := range docs {
		remaining := available - (used - fixedPromptTokens)
		if remaining <= 0 {
			res.Truncated = true
			break
		}
		n := est.Count(text)
		if n <= remaining {
			res.IncludedIndices = append(res.IncludedIndices, i)
			used += n
			res.DocumentsTotalTokens += n
			continue
		}
		if remaining >= MinDocTokens {
			truncated := est.TruncateToTokens(text, remaining)
			res.IncludedIndices = append(res.IncludedIndices, i)
			res.TruncatedIndices = append(res.TruncatedIndices, i)
			res.TruncatedText[i] = truncated
			tn := est.Count(truncated)
			used += tn
			res.DocumentsTotalTokens += tn
			res.Truncated = true
			continue
		}
		res.Truncated = true
		break
	}

	res.TokensInput = used
	denom := budget.Window - budget.Reserve
	if denom > 0 {
		res.ContextUsagePercent = 100 * float64(used) / float64(denom)
	}
	sort.Ints(res.IncludedIndices)
	return res
}
