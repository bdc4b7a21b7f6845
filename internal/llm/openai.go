package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragbox/core-rag/internal/retry"
)

// OpenAIProvider wraps the OpenAI chat completions API. Grounded on the
// pack's verified openai-go usage (_examples/Tangerg-lynx/ai/providers/
// openaiv2/api.go: openai.NewClient(option.WithAPIKey(...)), then
// client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{...})).
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	return retry.Do(ctx, retry.Default, "llm.openai.Chat", isRetryableStatusText, func() (Response, error) {
		return p.doChat(ctx, messages, model, temperature, maxTokens)
	})
}

func (p *OpenAIProvider) doChat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	var turns []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			turns = append(turns, openai.SystemMessage(m.Content))
		case RoleAssistant:
			turns = append(turns, openai.AssistantMessage(m.Content))
		default:
			turns = append(turns, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    turns,
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, errEmptyResponse
	}

	return Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
