// Package gtllm coordinates game-theoretic exchanges between LLM agents. It
// runs conversations in five modes: Standard isolated chats, PvP debates with
// a moderator verdict, Collaborative convergence toward one joint answer,
// Competitive proposal-and-vote, and LLM's Choice where the agents themselves
// pick the protocol.
//
// Arena is the top-level entry point; the sub-packages expose the individual
// layers (gateway, scheduler, aggregate, engine, session) for direct use.
package gtllm

import (
	"context"
	"time"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/engine"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/history"
	"github.com/hupe1980/gtllm/logging"
	"github.com/hupe1980/gtllm/session"
	"github.com/hupe1980/gtllm/settings"
)

// Options configure an Arena.
type Options struct {
	// Config tunes every conversation.
	Config engine.Config
	// Logger records activity across all layers. Defaults to NoOp.
	Logger logging.Logger
	// History persists terminal conversations. Nil disables persistence.
	History *history.Store
}

// Arena manages multi-agent conversations against one invocation gateway.
type Arena struct {
	session *session.Session
}

// New creates an Arena.
func New(invoker gateway.Invoker, optFns ...func(o *Options)) *Arena {
	opts := Options{Config: engine.DefaultConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Arena{
		session: session.New(invoker, func(o *session.Options) {
			o.Config = opts.Config
			o.Logger = opts.Logger
			o.History = opts.History
		}),
	}
}

// Start creates a conversation and returns its ID.
func (a *Arena) Start(mode core.Mode, roster []core.Agent) (string, error) {
	return a.session.Start(mode, roster)
}

// Submit routes a user message and blocks until the triggered rounds resolve.
func (a *Arena) Submit(ctx context.Context, id, text string) error {
	return a.session.Submit(ctx, id, text)
}

// SubmitAsync routes a user message without blocking; outcomes surface via
// Subscribe or State.
func (a *Arena) SubmitAsync(id, text string) error {
	return a.session.SubmitAsync(id, text)
}

// Cancel cooperatively stops a conversation.
func (a *Arena) Cancel(id string) error {
	return a.session.Cancel(id)
}

// Subscribe returns a snapshot channel closed at the terminal phase.
func (a *Arena) Subscribe(id string) (<-chan core.State, error) {
	return a.session.Subscribe(id)
}

// State returns a deep copy of a conversation's current state.
func (a *Arena) State(id string) (core.State, error) {
	return a.session.State(id)
}

// Conversations lists the live conversations, most recently updated first.
func (a *Arena) Conversations() []core.State {
	return a.session.Conversations()
}

// Remove drops a conversation, cancelling it first if still live.
func (a *Arena) Remove(id string) error {
	return a.session.Remove(id)
}

// ConfigFromSettings maps persisted user settings onto an engine
// configuration. The judge convergence policy needs an agent and is wired by
// the caller; the mapping keeps the exact-match default in that case.
func ConfigFromSettings(s settings.Settings) engine.Config {
	cfg := engine.DefaultConfig()
	if s.RoundCap > 0 {
		cfg.RoundCap = s.RoundCap
	}
	if s.PvPRounds > 0 {
		cfg.PvPRounds = s.PvPRounds
	}
	if s.MaxRetries >= 0 {
		cfg.MaxRetries = s.MaxRetries
	}
	if s.InvokeTimeoutSecs > 0 {
		cfg.InvokeTimeout = time.Duration(s.InvokeTimeoutSecs) * time.Second
	}
	return cfg
}
