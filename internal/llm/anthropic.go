package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/resilience"
	"github.com/sells-group/clearance-cli/pkg/anthropic"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else. " +
	"Do not wrap it in markdown code fences and do not add commentary."

const defaultMaxTokens int64 = 4096

// AnthropicGenerator implements Generator on the Anthropic Messages API
// with request-rate limiting and retry on transient failures.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *AdaptiveLimiter
	retry     resilience.RetryConfig
}

// Option configures an AnthropicGenerator.
type Option func(*AnthropicGenerator)

// WithRequestsPerMinute sets the request-rate ceiling.
func WithRequestsPerMinute(rpm int) Option {
	return func(g *AnthropicGenerator) { g.limiter = NewAdaptiveLimiter(rpm) }
}

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *AnthropicGenerator) { g.retry = cfg }
}

// WithMaxTokens sets the default completion ceiling.
func WithMaxTokens(n int64) Option {
	return func(g *AnthropicGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// NewAnthropicGenerator creates a generator that uses model unless a
// request names another. Defaults: 60 requests per minute, three attempts.
func NewAnthropicGenerator(client anthropic.Client, model string, opts ...Option) *AnthropicGenerator {
	g := &AnthropicGenerator{
		client:    client,
		model:     model,
		maxTokens: defaultMaxTokens,
		limiter:   NewAdaptiveLimiter(60),
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	return g
}

// Chat sends req and returns the response text.
func (g *AnthropicGenerator) Chat(ctx context.Context, req Request) (string, error) {
	prompt := g.prompt(req)
	chain := phaseOr(req.Phase)

	out, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*anthropic.Completion, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limiter")
		}
		out, err := g.client.Complete(ctx, prompt)
		if err != nil {
			status := anthropic.StatusCode(err)
			if status == http.StatusTooManyRequests {
				g.limiter.OnRateLimit()
			}
			return nil, resilience.Classify(err, status)
		}
		g.limiter.OnSuccess()
		return out, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: chat (%s)", chain)
	}

	model := out.Model
	if model == "" {
		model = prompt.Model
	}
	out.Usage.Log(model, chain)

	if out.Truncated() || strings.TrimSpace(out.Text) == "" {
		zap.L().Warn("llm: incomplete response",
			zap.String("chain", chain),
			zap.String("stop_reason", out.StopReason),
			zap.Int("chars", len(out.Text)),
		)
	}
	return out.Text, nil
}

func (g *AnthropicGenerator) prompt(req Request) anthropic.Prompt {
	model := req.Model
	if model == "" {
		model = g.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	system := req.System
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += jsonInstruction
	}

	turns := make([]anthropic.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, anthropic.Turn{Assistant: m.Role == RoleAssistant, Text: m.Content})
	}

	return anthropic.Prompt{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		CacheSystem: system != "",
		Turns:       turns,
	}
}

func phaseOr(phase string) string {
	if phase == "" {
		return "generation"
	}
	return phase
}
