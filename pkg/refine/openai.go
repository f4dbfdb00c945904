package refine

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

const defaultOpenAIModel = openai.GPT4oMini

type openaiRefiner struct {
	client *openai.Client
	model  string
}

func newOpenAI(cfg Config) Refiner {
	r := &openaiRefiner{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
	}
	if r.model == "" {
		r.model = defaultOpenAIModel
	}
	return r
}

func (r *openaiRefiner) Refine(ctx context.Context, req Request) (*model.RefinementPayload, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "refine: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("refine: openai returned no choices")
	}

	zap.L().Debug("refinement response",
		zap.String("provider", "openai"),
		zap.String("model", r.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return DecodePayload(resp.Choices[0].Message.Content), nil
}
