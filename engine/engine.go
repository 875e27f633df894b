// Package engine implements the mode state machine driving one conversation:
// it validates the roster, executes the scheduler's round plans against the
// invocation gateway, feeds raw responses through the aggregator, and owns
// every state transition from Initializing to Finished or Aborted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/gtllm/aggregate"
	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/logging"
	"github.com/hupe1980/gtllm/scheduler"
)

// Config tunes one conversation's engine.
type Config struct {
	// RoundCap bounds collaborative refinement rounds per user message.
	RoundCap int
	// PvPRounds is the number of challenger exchanges before judgment.
	PvPRounds int
	// MaxRetries bounds gateway re-attempts per invocation.
	MaxRetries int
	// RetryInterval seeds the retry backoff. Zero keeps the gateway default.
	RetryInterval time.Duration
	// InvokeTimeout caps each invocation. Zero disables the cap.
	InvokeTimeout time.Duration
	// CancelGrace is how long Cancel waits for in-flight invocations to
	// drain before abandoning them.
	CancelGrace time.Duration
	// Params are the sampling parameters applied to every invocation.
	Params gateway.Params
	// Templates override the built-in prompt set.
	Templates scheduler.Templates
	// Convergence decides collaborative agreement. Defaults to
	// aggregate.ExactMatch.
	Convergence aggregate.ConvergencePolicy
	// SnapshotBuffer sizes subscriber channels.
	SnapshotBuffer int
}

// DefaultConfig returns the baseline engine configuration.
func DefaultConfig() Config {
	return Config{
		RoundCap:       8,
		PvPRounds:      1,
		MaxRetries:     2,
		InvokeTimeout:  300 * time.Second,
		CancelGrace:    5 * time.Second,
		Templates:      scheduler.DefaultTemplates(),
		Convergence:    aggregate.ExactMatch{},
		SnapshotBuffer: 16,
	}
}

// Options configure a Machine.
type Options struct {
	// Config tunes the engine. Zero-valued fields fall back to DefaultConfig.
	Config Config
	// Logger records engine activity. Defaults to NoOp.
	Logger logging.Logger
}

// Machine is the state machine for a single conversation. All state mutation
// is serialized through the machine; readers get deep copies.
type Machine struct {
	mu     sync.Mutex
	state  *core.State
	subs   []chan core.State
	closed bool

	cfg     Config
	invoker gateway.Invoker
	sched   *scheduler.Scheduler
	agg     *aggregate.Aggregator
	logger  logging.Logger

	running   bool
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// New validates the mode/roster combination and creates the machine. A
// validation failure is returned as a *core.ConfigError and no conversation
// state is created.
func New(mode core.Mode, roster []core.Agent, invoker gateway.Invoker, optFns ...func(o *Options)) (*Machine, error) {
	opts := Options{Config: DefaultConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := normalize(opts.Config)
	logger := logging.OrNoOp(opts.Logger)

	if invoker == nil {
		return nil, errors.New("engine: invoker is required")
	}
	if err := scheduler.Validate(mode, roster); err != nil {
		return nil, err
	}

	state := core.NewState(mode, roster)
	state.Phase = core.PhaseRoundPending

	retrying := gateway.NewRetryInvoker(invoker, func(o *gateway.RetryOptions) {
		o.MaxRetries = cfg.MaxRetries
		if cfg.RetryInterval > 0 {
			o.InitialInterval = cfg.RetryInterval
		}
		o.Logger = logger
	})

	sched := scheduler.New(func(o *scheduler.Options) {
		o.Templates = cfg.Templates
		o.Params = cfg.Params
		o.Logger = logger
	})
	agg := aggregate.New(func(o *aggregate.Options) {
		o.Logger = logger
	})

	return &Machine{
		state:   state,
		cfg:     cfg,
		invoker: retrying,
		sched:   sched,
		agg:     agg,
		logger:  logger,
	}, nil
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.RoundCap <= 0 {
		cfg.RoundCap = def.RoundCap
	}
	if cfg.PvPRounds <= 0 {
		cfg.PvPRounds = def.PvPRounds
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = def.CancelGrace
	}
	if cfg.SnapshotBuffer <= 0 {
		cfg.SnapshotBuffer = def.SnapshotBuffer
	}
	if cfg.Templates == (scheduler.Templates{}) {
		cfg.Templates = def.Templates
	}
	if cfg.Convergence == nil {
		cfg.Convergence = def.Convergence
	}
	return cfg
}

// ID returns the conversation identifier.
func (m *Machine) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ID
}

// Mode returns the conversation mode.
func (m *Machine) Mode() core.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

// State returns a deep copy of the current conversation state.
func (m *Machine) State() core.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Subscribe returns a channel of state snapshots. The current state is
// delivered immediately; the channel is closed once the conversation reaches
// a terminal phase. Slow consumers may miss intermediate snapshots; the final
// state is always available via State.
func (m *Machine) Subscribe() <-chan core.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan core.State, m.cfg.SnapshotBuffer)
	ch <- m.state.Clone()
	if m.state.Phase.Terminal() {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Submit drives one user message through the mode's round protocol. It blocks
// until the rounds triggered by this message resolve. Exactly one Submit may
// be in flight per conversation.
func (m *Machine) Submit(ctx context.Context, text string) error {
	m.mu.Lock()
	if m.state.Phase.Terminal() {
		phase := m.state.Phase
		m.mu.Unlock()
		return fmt.Errorf("conversation %s is %s", m.state.ID, phase)
	}
	if m.running {
		m.mu.Unlock()
		return errors.New("a round is already resolving")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.running = true
	m.runCancel = cancel
	m.runDone = done

	m.state.AppendMessage(core.NewMessage(core.AuthorUser, text, m.state.NextRound()))
	m.state.Phase = core.PhaseRoundResolving
	m.publishLocked()
	mode := m.state.Mode
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.running = false
		m.runCancel = nil
		m.runDone = nil
		m.mu.Unlock()
		close(done)
	}()

	var err error
	switch mode {
	case core.ModeStandard:
		err = m.runStandard(runCtx)
	case core.ModePvP:
		err = m.runPvP(runCtx, text)
	case core.ModeCollaborative:
		err = m.runCollaborative(runCtx, text)
	case core.ModeCompetitive:
		err = m.runCompetitive(runCtx, text)
	case core.ModeChoice:
		err = m.runChoice(runCtx, text)
	default:
		err = core.NewConfigError(mode, "unknown mode %q", string(mode))
	}
	if err != nil {
		m.abort(err)
		return err
	}
	return nil
}

// Cancel cooperatively stops the conversation. In-flight invocations get
// CancelGrace to drain; afterwards the conversation is marked aborted
// regardless. Cancelling a terminal conversation is a no-op.
func (m *Machine) Cancel() {
	m.mu.Lock()
	if m.state.Phase.Terminal() {
		m.mu.Unlock()
		return
	}
	cancel, done := m.runCancel, m.runDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(m.cfg.CancelGrace):
			m.logger.Warn("cancel grace period expired, abandoning in-flight invocations")
		}
	}
	m.abort(errors.New("cancelled by user"))
}

// errConversationClosed is returned by a round driver whose conversation
// reached a terminal phase mid-round, e.g. a cancellation whose grace period
// expired while invocations were still in flight.
var errConversationClosed = errors.New("conversation closed before the round resolved")

// withState runs fn with the machine lock held.
func (m *Machine) withState(fn func(st *core.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// advance runs fn with the machine lock held unless the conversation already
// reached a terminal phase. Terminal states are immutable: a Submit goroutine
// that outlives its cancellation grace period must not resurrect or re-finish
// the conversation. It reports whether fn ran.
func (m *Machine) advance(fn func(st *core.State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase.Terminal() {
		return false
	}
	fn(m.state)
	return true
}

// setResolving flips the phase to RoundResolving for follow-up rounds within
// one Submit and publishes the transition.
func (m *Machine) setResolving() {
	m.advance(func(st *core.State) {
		if st.Phase != core.PhaseRoundResolving {
			st.Phase = core.PhaseRoundResolving
			m.publishLocked()
		}
	})
}

// abort moves the conversation to PhaseAborted, keeping already-resolved
// rounds for inspection. Idempotent.
func (m *Machine) abort(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase.Terminal() {
		return
	}
	m.state.Err = err.Error()
	m.state.Phase = core.PhaseAborted
	m.state.Updated = time.Now().UTC()
	m.logger.Error("conversation aborted mode=%s err=%v", m.state.Mode, err)
	m.publishLocked()
	m.closeSubsLocked()
}

// finish appends the terminal round, records the verdict and closes out the
// conversation. Finishing a conversation that turned terminal mid-round is an
// error, never a retraction.
func (m *Machine) finish(round core.Round, verdict *core.Verdict) error {
	ok := m.advance(func(st *core.State) {
		st.AppendRound(round)
		st.Verdict = verdict
		st.Phase = core.PhaseFinished
		m.logger.Info("conversation finished mode=%s round=%d winner=%q", st.Mode, round.Index, verdict.Winner)
		m.publishLocked()
		m.closeSubsLocked()
	})
	if !ok {
		return errConversationClosed
	}
	return nil
}

func (m *Machine) publishLocked() {
	snapshot := m.state.Clone()
	for _, ch := range m.subs {
		select {
		case ch <- snapshot:
		default:
			m.logger.Warn("dropping snapshot for slow subscriber")
		}
	}
}

func (m *Machine) closeSubsLocked() {
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}

// slot is one agent's result within an executed plan.
type slot struct {
	agent core.Agent
	text  string
	err   error
}

// executeRound runs every invocation of a plan, in parallel when the plan
// allows it. Slot failures are recorded, never propagated: degradation
// decisions belong to the mode drivers.
func (m *Machine) executeRound(ctx context.Context, plan scheduler.Plan) []slot {
	slots := make([]slot, len(plan.Invocations))
	if plan.Concurrent {
		g := new(errgroup.Group)
		for i, inv := range plan.Invocations {
			g.Go(func() error {
				slots[i] = m.invokeSlot(ctx, inv)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, inv := range plan.Invocations {
			slots[i] = m.invokeSlot(ctx, inv)
		}
	}
	return slots
}

func (m *Machine) invokeSlot(ctx context.Context, inv scheduler.Invocation) slot {
	ictx := ctx
	if m.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, m.cfg.InvokeTimeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := m.invoker.Invoke(ictx, inv.Agent, inv.Context, inv.Params)
	dur := time.Since(start)
	if err != nil {
		m.logger.Warn("invocation failed agent=%s model=%s dur=%s err=%v", inv.Agent.Label, inv.Agent.Model, dur, err)
		return slot{agent: inv.Agent, err: err}
	}
	m.logger.Debug("invocation ok agent=%s model=%s tokens=%d dur=%s", inv.Agent.Label, inv.Agent.Model, completion.Usage.TotalTokens, dur)
	return slot{agent: inv.Agent, text: completion.Text}
}

// authFailure returns the first AuthError among the slots. Credential
// problems affect every future invocation, so they escalate immediately
// instead of degrading the round.
func authFailure(slots []slot) error {
	for _, s := range slots {
		if s.err == nil {
			continue
		}
		if f := gateway.AsFailure(s.err); f != nil && f.Kind == gateway.AuthError {
			return f
		}
	}
	return nil
}

// successMap returns agentID -> completion text for the successful slots.
func successMap(slots []slot) map[string]string {
	out := make(map[string]string, len(slots))
	for _, s := range slots {
		if s.err == nil {
			out[s.agent.ID] = s.text
		}
	}
	return out
}

// responsesOf freezes the slots into round response records.
func responsesOf(slots []slot) []core.Response {
	out := make([]core.Response, 0, len(slots))
	for _, s := range slots {
		r := core.Response{AgentID: s.agent.ID}
		if s.err != nil {
			r.Err = s.err.Error()
		} else {
			r.Text = s.text
		}
		out = append(out, r)
	}
	return out
}

// failRound freezes a below-minimum round as failed and returns the abort
// error the caller propagates.
func (m *Machine) failRound(plan scheduler.Plan, slots []slot, minimum int, reason string) error {
	round := core.Round{Index: plan.Round, Outcome: core.OutcomeFailed, Responses: responsesOf(slots)}
	m.advance(func(st *core.State) {
		st.AppendRound(round)
	})
	return &core.RoundAbortError{
		Round:     plan.Round,
		Successes: round.Successes(),
		Minimum:   minimum,
		Reason:    reason,
	}
}
