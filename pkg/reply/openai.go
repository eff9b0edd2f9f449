package reply

import (
	"context"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type OpenAISettings struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// HistoryTokenBudget drops the oldest history entries once exceeded, 0 disables it.
	HistoryTokenBudget int
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req go_openai.ChatCompletionRequest) (go_openai.ChatCompletionResponse, error)
}

// OpenAIProvider sends the visible thread to a chat completion endpoint.
type OpenAIProvider struct {
	client   chatCompleter
	settings OpenAISettings
	counter  TokenCounter
}

func NewOpenAIProvider(settings OpenAISettings) (*OpenAIProvider, error) {
	if settings.APIKey == "" {
		return nil, errors.New("openai: missing api key")
	}
	if settings.Model == "" {
		settings.Model = go_openai.GPT4oMini
	}

	config := go_openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		config.BaseURL = settings.BaseURL
	}
	client := go_openai.NewClientWithConfig(config)

	ret := &OpenAIProvider{client: client, settings: settings}
	if settings.HistoryTokenBudget > 0 {
		counter, err := NewTokenCounter(settings.Model)
		if err != nil {
			return nil, err
		}
		ret.counter = counter
	}
	return ret, nil
}

func toOpenAIRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return go_openai.ChatMessageRoleAssistant
	}
	return go_openai.ChatMessageRoleUser
}

func (p *OpenAIProvider) buildRequest(req Request) go_openai.ChatCompletionRequest {
	history := req.History
	if p.counter != nil {
		history = TrimHistory(history, p.settings.HistoryTokenBudget, p.counter)
	}

	msgs := make([]go_openai.ChatCompletionMessage, 0, len(history)+2)
	if p.settings.SystemPrompt != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: p.settings.SystemPrompt,
		})
	}
	for _, h := range history {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    toOpenAIRole(h.Role),
			Content: h.Content,
		})
	}
	msgs = append(msgs, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: PromptWithFiles(req.Prompt, req.Files),
	})

	return go_openai.ChatCompletionRequest{
		Model:       p.settings.Model,
		Messages:    msgs,
		MaxTokens:   p.settings.MaxTokens,
		Temperature: float32(p.settings.Temperature),
	}
}

func (p *OpenAIProvider) Reply(ctx context.Context, req Request) (string, error) {
	creq := p.buildRequest(req)
	log.Debug().
		Str("model", creq.Model).
		Int("messages", len(creq.Messages)).
		Int("files", len(req.Files)).
		Msg("requesting chat completion")

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", errors.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyReply
	}
	log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("chat completion done")
	return content, nil
}

var _ Provider = (*OpenAIProvider)(nil)
