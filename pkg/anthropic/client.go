// Package anthropic is a narrow wrapper over the Anthropic Messages API. It
// exposes only what the generation layer needs: text in, text out, with
// token usage for cost attribution.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const stopMaxTokens = "max_tokens"

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Turn is one message of the conversation.
type Turn struct {
	Assistant bool
	Text      string
}

// Prompt is a single Messages API call.
type Prompt struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	System      string
	// CacheSystem places an ephemeral cache breakpoint on the system
	// prompt. Chains reuse the same system prompt across documents.
	CacheSystem bool
	Turns       []Turn
}

// Completion is the text the model produced.
type Completion struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Truncated reports whether generation stopped at the token ceiling.
func (c *Completion) Truncated() bool {
	return c != nil && c.StopReason == stopMaxTokens
}

// Usage counts tokens billed for one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// price is USD per million tokens.
type price struct {
	input, output decimal.Decimal
}

var (
	million        = decimal.NewFromInt(1_000_000)
	cacheWriteRate = decimal.RequireFromString("1.25")
	cacheReadRate  = decimal.RequireFromString("0.1")
)

var pricing = map[string]price{
	"claude-haiku-4-5-20251001":  {decimal.RequireFromString("0.80"), decimal.RequireFromString("4.00")},
	"claude-sonnet-4-5-20250929": {decimal.RequireFromString("3.00"), decimal.RequireFromString("15.00")},
}

// Cost estimates the USD cost of the call. Unknown models cost zero.
func (u Usage) Cost(model string) decimal.Decimal {
	p, ok := pricing[model]
	if !ok {
		return decimal.Zero
	}
	tokens := func(n int64) decimal.Decimal { return decimal.NewFromInt(n).Div(million) }
	return tokens(u.InputTokens).Mul(p.input).
		Add(tokens(u.OutputTokens).Mul(p.output)).
		Add(tokens(u.CacheWriteTokens).Mul(p.input).Mul(cacheWriteRate)).
		Add(tokens(u.CacheReadTokens).Mul(p.input).Mul(cacheReadRate))
}

// Log records usage and estimated cost against a chain.
func (u Usage) Log(model, chain string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("chain", chain),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheWriteTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
		zap.String("estimated_cost_usd", u.Cost(model).StringFixed(6)),
	)
}

type apiClient struct {
	sdk sdk.Client
}

// New returns a Client for apiKey. SDK retries are off; the generation
// layer owns retry. opts are applied after the key (base URL, headers).
func New(apiKey string, opts ...option.RequestOption) Client {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &apiClient{sdk: sdk.NewClient(all...)}
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *apiClient) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	msg, err := c.sdk.Messages.New(ctx, p.params())
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: complete")
	}
	return completionOf(msg), nil
}

func (p Prompt) params() sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(p.Model),
		MaxTokens:   p.MaxTokens,
		Temperature: sdk.Float(p.Temperature),
		Messages:    make([]sdk.MessageParam, 0, len(p.Turns)),
	}
	for _, t := range p.Turns {
		block := sdk.NewTextBlock(t.Text)
		if t.Assistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}
	if p.System != "" {
		sys := sdk.TextBlockParam{Text: p.System}
		if p.CacheSystem {
			sys.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = []sdk.TextBlockParam{sys}
	}
	return params
}

func completionOf(msg *sdk.Message) *Completion {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Completion{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
