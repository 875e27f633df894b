// Package openrouter implements the invocation gateway against the
// OpenRouter API. OpenRouter speaks the OpenAI chat completions dialect, so
// the adapter drives the official OpenAI client with a custom base URL and
// maps transport/API errors onto the gateway's typed failure kinds.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
)

const (
	apiBase = "https://openrouter.ai/api/v1"
	appName = "gtllm"
	appURL  = "https://github.com/hupe1980/gtllm"
)

// Options configure the OpenRouter gateway.
type Options struct {
	// BaseURL overrides the OpenRouter endpoint, mainly for tests.
	BaseURL string
	// Timeout caps each request. Zero disables the client-side cap and
	// leaves deadlines to the per-invocation context.
	Timeout time.Duration
	// MaxTokens is the default completion budget when Params leaves it unset.
	MaxTokens int64
}

// Gateway is an Invoker + Catalog backed by OpenRouter.
type Gateway struct {
	client openai.Client
	opts   Options
}

var (
	_ gateway.Invoker = (*Gateway)(nil)
	_ gateway.Catalog = (*Gateway)(nil)
)

// New creates an OpenRouter gateway authenticated with the given API key.
func New(apiKey string, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		BaseURL:   apiBase,
		Timeout:   300 * time.Second,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithHeader("HTTP-Referer", appURL),
		option.WithHeader("X-Title", appName),
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &Gateway{client: openai.NewClient(clientOpts...), opts: opts}
}

// Invoke implements gateway.Invoker.
func (g *Gateway) Invoke(ctx context.Context, agent core.Agent, msgs []core.Message, params gateway.Params) (gateway.Completion, error) {
	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(agent.Model),
		Messages: buildMessages(agent, msgs),
	}
	if params.Temperature != nil {
		req.Temperature = openai.Float(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = openai.Float(*params.TopP)
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.opts.MaxTokens
	}
	req.MaxCompletionTokens = openai.Int(maxTokens)

	resp, err := g.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return gateway.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return gateway.Completion{}, gateway.NewFailure(gateway.Malformed, "no choices returned for model %s", agent.Model)
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return gateway.Completion{}, gateway.NewFailure(gateway.Malformed, "empty completion for model %s", agent.Model)
	}

	return gateway.Completion{
		Text:  text,
		Model: resp.Model,
		Usage: gateway.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// ListModels implements gateway.Catalog.
func (g *Gateway) ListModels(ctx context.Context) ([]gateway.ModelInfo, error) {
	page, err := g.client.Models.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]gateway.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, gateway.ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return out, nil
}

// buildMessages converts transcript messages into chat roles. Messages
// authored by the invoked agent become assistant turns; anything else,
// including peer agents, is presented as user input.
func buildMessages(agent core.Agent, msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Author {
		case core.AuthorSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.AuthorUser:
			out = append(out, openai.UserMessage(m.Content))
		case agent.ID:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(fmt.Sprintf("[%s]: %s", m.Author, m.Content)))
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

	var apierr *openai.Error
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
