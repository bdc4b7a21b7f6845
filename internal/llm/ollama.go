package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ragbox/core-rag/internal/retry"
)

// OllamaProvider calls a local Ollama server's native /api/chat endpoint.
// Grounded on the donor's internal/gcpclient/byollm.go BYOLLMClient: same
// marshal-request/POST/status-switch/decode-response shape, re-pointed at
// Ollama instead of an OpenAI-compatible gateway and without the bearer
// auth header (local daemon, no API key).
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 180 * time.Second},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	return retry.Do(ctx, retry.Default, "llm.ollama.Chat", isRetryableStatusText, func() (Response, error) {
		return p.doChat(ctx, messages, model, temperature, maxTokens)
	})
}

func (p *OllamaProvider) doChat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	msgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}

	reqBody := ollamaRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("llm.ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("llm.ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("llm.ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm.ollama: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, fmt.Errorf("llm.ollama: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("llm.ollama: status %d: %s", resp.StatusCode, respBody)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("llm.ollama: decode response: %w", err)
	}
	if parsed.Error != "" {
		return Response{}, fmt.Errorf("llm.ollama: %s", parsed.Error)
	}
	if parsed.Message.Content == "" {
		return Response{}, errEmptyResponse
	}

	return Response{
		Text:         parsed.Message.Content,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}
