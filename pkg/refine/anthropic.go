package refine

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 4096
)

type anthropicRefiner struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

func newAnthropic(cfg Config) Refiner {
	r := &anthropicRefiner{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if r.model == "" {
		r.model = defaultAnthropicModel
	}
	if r.maxTokens == 0 {
		r.maxTokens = defaultMaxTokens
	}
	return r
}

func (r *anthropicRefiner) Refine(ctx context.Context, req Request) (*model.RefinementPayload, error) {
	msg, err := r.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(r.model),
		MaxTokens: r.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildUserPrompt(req))),
		},
		Temperature: sdk.Float(0),
	})
	if err != nil {
		return nil, eris.Wrap(err, "refine: anthropic create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	zap.L().Debug("refinement response",
		zap.String("provider", "anthropic"),
		zap.String("model", r.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return DecodePayload(text), nil
}
