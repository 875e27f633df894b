// Package session manages the set of live conversations: starting them,
// routing user messages, cancellation and state subscriptions. It is the
// surface presentation layers talk to; everything below it is per-conversation
// machinery.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/engine"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/history"
	"github.com/hupe1980/gtllm/logging"
)

// Options configure a Session.
type Options struct {
	// Config tunes every conversation started by this session.
	Config engine.Config
	// Logger records session activity. Defaults to NoOp.
	Logger logging.Logger
	// History persists conversations once they reach a terminal phase.
	// Nil disables persistence.
	History *history.Store
}

// Session owns the live conversations of one application instance. Safe for
// concurrent use.
type Session struct {
	mu      sync.RWMutex
	convs   map[string]*engine.Machine
	invoker gateway.Invoker
	cfg     engine.Config
	logger  logging.Logger
	history *history.Store
}

// New creates a Session backed by the given gateway.
func New(invoker gateway.Invoker, optFns ...func(o *Options)) *Session {
	opts := Options{Config: engine.DefaultConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Session{
		convs:   map[string]*engine.Machine{},
		invoker: invoker,
		cfg:     opts.Config,
		logger:  logging.OrNoOp(opts.Logger),
		history: opts.History,
	}
}

// Start validates the roster and creates a new conversation, returning its
// ID. A *core.ConfigError means the conversation never started.
func (s *Session) Start(mode core.Mode, roster []core.Agent) (string, error) {
	m, err := engine.New(mode, roster, s.invoker, func(o *engine.Options) {
		o.Config = s.cfg
		o.Logger = s.logger
	})
	if err != nil {
		return "", err
	}

	id := m.ID()
	s.mu.Lock()
	s.convs[id] = m
	s.mu.Unlock()

	s.logger.Info("conversation started id=%s mode=%s agents=%d", id, mode, len(roster))
	return id, nil
}

// Submit routes a user message into a conversation and blocks until the
// triggered rounds resolve. Terminal conversations reject further messages.
func (s *Session) Submit(ctx context.Context, id, text string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	err = m.Submit(ctx, text)
	s.persistIfTerminal(m)
	return err
}

// SubmitAsync routes a user message without blocking. Resolution errors are
// logged and land in the conversation state; callers observe them via
// Subscribe or State.
func (s *Session) SubmitAsync(id, text string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	go func() {
		if err := m.Submit(context.Background(), text); err != nil {
			s.logger.Error("conversation %s failed: %v", id, err)
		}
		s.persistIfTerminal(m)
	}()
	return nil
}

// Cancel cooperatively stops a conversation.
func (s *Session) Cancel(id string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	m.Cancel()
	s.persistIfTerminal(m)
	return nil
}

// Subscribe returns a snapshot channel for a conversation. The channel closes
// when the conversation reaches a terminal phase.
func (s *Session) Subscribe(id string) (<-chan core.State, error) {
	m, err := s.machine(id)
	if err != nil {
		return nil, err
	}
	return m.Subscribe(), nil
}

// State returns a deep copy of a conversation's current state.
func (s *Session) State(id string) (core.State, error) {
	m, err := s.machine(id)
	if err != nil {
		return core.State{}, err
	}
	return m.State(), nil
}

// Conversations lists the live conversations, most recently updated first.
func (s *Session) Conversations() []core.State {
	s.mu.RLock()
	out := make([]core.State, 0, len(s.convs))
	for _, m := range s.convs {
		out = append(out, m.State())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out
}

// Remove drops a conversation from the session, cancelling it first if it is
// still live.
func (s *Session) Remove(id string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	m.Cancel()
	s.persistIfTerminal(m)

	s.mu.Lock()
	delete(s.convs, id)
	s.mu.Unlock()
	return nil
}

func (s *Session) machine(id string) (*engine.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("unknown conversation %s", id)
	}
	return m, nil
}

func (s *Session) persistIfTerminal(m *engine.Machine) {
	if s.history == nil {
		return
	}
	st := m.State()
	if !st.Phase.Terminal() {
		return
	}
	if err := s.history.Save(st); err != nil {
		s.logger.Error("persisting conversation %s failed: %v", st.ID, err)
	}
}
