package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/logging"
)

// RetryOptions configure a RetryInvoker.
type RetryOptions struct {
	// MaxRetries bounds the number of re-attempts after the first call.
	MaxRetries int
	// InitialInterval seeds the exponential backoff.
	InitialInterval time.Duration
	// Logger records retry attempts. Defaults to NoOp.
	Logger logging.Logger
}

// RetryInvoker wraps an Invoker with exponential backoff for retryable
// failures. Only Timeout and RateLimited are retried; AuthError, Malformed
// and Unavailable surface immediately.
type RetryInvoker struct {
	next   Invoker
	opts   RetryOptions
	logger logging.Logger
}

// NewRetryInvoker wraps next with a retry policy.
func NewRetryInvoker(next Invoker, optFns ...func(o *RetryOptions)) *RetryInvoker {
	opts := RetryOptions{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RetryInvoker{next: next, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Invoke implements Invoker.
func (r *RetryInvoker) Invoke(ctx context.Context, agent core.Agent, msgs []core.Message, params Params) (Completion, error) {
	attempt := 0
	operation := func() (Completion, error) {
		attempt++
		completion, err := r.next.Invoke(ctx, agent, msgs, params)
		if err == nil {
			return completion, nil
		}
		failure := AsFailure(err)
		if !failure.Retryable() {
			return Completion{}, backoff.Permanent(failure)
		}
		r.logger.Warn("retryable invocation failure agent=%s kind=%s attempt=%d", agent.ID, failure.Kind, attempt)
		return Completion{}, failure
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.opts.InitialInterval

	completion, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.opts.MaxRetries+1)),
	)
	if err != nil {
		return Completion{}, AsFailure(err)
	}
	return completion, nil
}
