// Package llm implements C14: the single chat() capability spec.md §6
// abstracts over three provider families, selected by LLM_PROVIDER.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role mirrors the standard chat-message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat() call's message list.
type Message struct {
	Role    Role
	Content string
}

var errEmptyResponse = fmt.Errorf("llm: provider returned an empty response")

// Response is the result of a chat() call.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is the single capability every adapter implements:
// chat(messages, model, temperature, max_tokens) -> {text, input_tokens, output_tokens}.
type Provider interface {
	Chat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error)
}

// Kind is the configured provider family.
type Kind string

const (
	KindClaude Kind = "claude"
	KindOpenAI Kind = "openai"
	KindOllama Kind = "ollama"
)

// New constructs the Provider selected by kind. apiKey is ignored for
// ollama. baseURL overrides the default endpoint (used for ollama, and for
// an OpenAI-compatible gateway in front of "openai").
func New(kind Kind, apiKey, baseURL string) (Provider, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindClaude:
		return NewClaudeProvider(apiKey), nil
	case KindOpenAI:
		return NewOpenAIProvider(apiKey, baseURL), nil
	case KindOllama:
		return NewOllamaProvider(baseURL), nil
	default:
		return nil, fmt.Errorf("llm.New: unknown provider %q", kind)
	}
}

// isRetryableStatusText mirrors the donor's isRetryableError text-sniffing
// (internal/gcpclient/retry.go) generalised across providers, since each
// SDK/REST surface reports rate limiting differently.
func isRetryableStatusText(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "rate limit", "too many requests", "resource_exhausted", "503", "overloaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
