// Package anthropic implements the invocation gateway against the Anthropic
// Messages API for rosters that address Claude models directly instead of
// going through OpenRouter.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
)

// Options configure the Anthropic gateway.
type Options struct {
	// APIKey authenticates the client; empty falls back to the SDK's
	// environment lookup.
	APIKey string
	// MaxTokens is the default completion budget when Params leaves it unset.
	MaxTokens int64
}

// Gateway is an Invoker backed by the Anthropic Messages API.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

var _ gateway.Invoker = (*Gateway)(nil)

// New creates an Anthropic gateway.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{MaxTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Gateway{client: &client, opts: opts}
}

// Invoke implements gateway.Invoker.
func (g *Gateway) Invoke(ctx context.Context, agent core.Agent, msgs []core.Message, params gateway.Params) (gateway.Completion, error) {
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.opts.MaxTokens
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(agent.Model),
		MaxTokens: maxTokens,
		Messages:  buildMessages(agent, msgs),
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Float(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = anthropic.Float(*params.TopP)
	}
	if system := systemBlocks(msgs); len(system) > 0 {
		req.System = system
	}

	resp, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return gateway.Completion{}, classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return gateway.Completion{}, gateway.NewFailure(gateway.Malformed, "empty completion for model %s", agent.Model)
	}

	return gateway.Completion{
		Text:  text,
		Model: string(resp.Model),
		Usage: gateway.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildMessages converts transcript messages into Anthropic turns. System
// messages are handled separately via systemBlocks.
func buildMessages(agent core.Agent, msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Author {
		case core.AuthorSystem:
			continue
		case agent.ID:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case core.AuthorUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf("[%s]: %s", m.Author, m.Content))))
		}
	}
	return out
}

func systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var out []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Author == core.AuthorSystem && m.Content != "" {
			out = append(out, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return out
}

// classify maps client errors onto typed gateway failures.
func classify(err error) *gateway.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return gateway.WrapFailure(gateway.Timeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return gateway.WrapFailure(gateway.Unavailable, err)
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return gateway.WrapFailure(gateway.AuthError, err)
		case http.StatusTooManyRequests:
			return gateway.WrapFailure(gateway.RateLimited, err)
		case http.StatusRequestTimeout:
			return gateway.WrapFailure(gateway.Timeout, err)
		}
		if apierr.StatusCode >= 500 {
			return gateway.WrapFailure(gateway.Unavailable, err)
		}
		return gateway.WrapFailure(gateway.Malformed, err)
	}

	return gateway.WrapFailure(gateway.Unavailable, err)
}
