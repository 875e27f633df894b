// Package gateway defines the invocation gateway consumed by the
// orchestration engine: an abstract "invoke agent" capability that turns an
// agent handle plus an ordered message context into a completion or a typed
// failure. The engine never sees HTTP, authentication or streaming wire
// formats; provider adapters live in the subpackages.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/gtllm/core"
)

// FailureKind classifies an invocation failure. The engine treats every kind
// as "this agent's turn failed" and only distinguishes kinds when deciding
// whether to retry (Timeout, RateLimited) or escalate (AuthError).
type FailureKind string

const (
	// Timeout means the call did not return within the caller's deadline.
	Timeout FailureKind = "timeout"
	// RateLimited means the provider rejected the call for quota reasons.
	RateLimited FailureKind = "rate_limited"
	// AuthError means the credentials were rejected. Never retried.
	AuthError FailureKind = "auth_error"
	// Malformed means the provider returned an unparseable response.
	Malformed FailureKind = "malformed"
	// Unavailable covers transport errors and provider-side failures.
	Unavailable FailureKind = "unavailable"
)

// Failure is a typed invocation error.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure kind is worth retrying.
func (f *Failure) Retryable() bool {
	return f.Kind == Timeout || f.Kind == RateLimited
}

// NewFailure constructs a typed failure with a formatted message.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapFailure constructs a typed failure wrapping an underlying cause.
func WrapFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// AsFailure extracts a *Failure from an error chain. Untyped errors map to an
// Unavailable failure so the engine always has a kind to act on.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapFailure(Timeout, err)
	}
	return WrapFailure(Unavailable, err)
}

// TokenUsage captures token accounting for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the whole-response result of one invocation.
type Completion struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// Params carries per-invocation generation parameters. Nil pointer fields use
// the provider's defaults.
type Params struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int64
}

// Invoker performs one request/response exchange for an agent. Calls are
// independent (no side effects on other agents' contexts) and may be issued
// concurrently within a round. Implementations respect ctx cancellation and
// deadlines and return a *Failure for every error path.
type Invoker interface {
	Invoke(ctx context.Context, agent core.Agent, msgs []core.Message, params Params) (Completion, error)
}

// ModelInfo describes one model available through a gateway.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Catalog is implemented by gateways that can enumerate available models.
type Catalog interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
