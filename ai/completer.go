package ai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Request is one chat completion call.
type Request struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Completion is the model's answer plus token accounting.
type Completion struct {
	Text        string
	TotalTokens int64
}

// Completer performs a single chat completion. Implementations must honour ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// OpenAICompleter talks to the OpenAI chat completions API (or any compatible endpoint).
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a completer. baseURL may be empty for the public API.
// SDK retries are disabled; a failed call degrades to the fallback instead.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("ai: completion has no choices")
	}
	return Completion{
		Text:        resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
