package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ragbox/core-rag/internal/retry"
)

// ClaudeProvider wraps the Anthropic Messages API. Grounded on the pack's
// verified anthropic-sdk-go usage (client.Messages.New with
// MessageNewParams{Model, MaxTokens, System, Messages}, reading
// resp.Content[0].(anthropic.TextBlock) and resp.Usage for token counts).
type ClaudeProvider struct {
	client anthropic.Client
}

func NewClaudeProvider(apiKey string) *ClaudeProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &ClaudeProvider{client: anthropic.NewClient(opts...)}
}

func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	return retry.Do(ctx, retry.Default, "llm.claude.Chat", isRetryableStatusText, func() (Response, error) {
		return p.doChat(ctx, messages, model, temperature, maxTokens)
	})
}

func (p *ClaudeProvider) doChat(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (Response, error) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System:      system,
		Messages:    turns,
	})
	if err != nil {
		return Response{}, err
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	return Response{
		Text:         text,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
