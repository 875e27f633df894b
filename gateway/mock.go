package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/gtllm/core"
)

// Call records one MockInvoker invocation for assertions.
type Call struct {
	AgentID string
	Msgs    []core.Message
	Params  Params
}

// MockInvoker is a lightweight in-memory Invoker useful for tests & examples.
// Responses and failures are queued per agent ID and consumed in order; when
// a queue is empty a deterministic default response is synthesized from the
// last message. Safe for concurrent use within a round.
type MockInvoker struct {
	mu        sync.Mutex
	responses map[string][]string
	failures  map[string][]error
	calls     []Call
}

// NewMockInvoker constructs an empty mock gateway.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses: map[string][]string{},
		failures:  map[string][]error{},
	}
}

// Queue registers canned completions for an agent, consumed FIFO.
func (m *MockInvoker) Queue(agentID string, texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agentID] = append(m.responses[agentID], texts...)
}

// QueueFailure registers errors for an agent, consumed before any queued
// completions.
func (m *MockInvoker) QueueFailure(agentID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[agentID] = append(m.failures[agentID], errs...)
}

// Calls returns a copy of the recorded invocations in arrival order.
func (m *MockInvoker) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the recorded invocations issued to one agent.
func (m *MockInvoker) CallsFor(agentID string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out
}

// Invoke implements Invoker.
func (m *MockInvoker) Invoke(ctx context.Context, agent core.Agent, msgs []core.Message, params Params) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, AsFailure(err)
	}

	m.mu.Lock()
	ctxCopy := make([]core.Message, len(msgs))
	copy(ctxCopy, msgs)
	m.calls = append(m.calls, Call{AgentID: agent.ID, Msgs: ctxCopy, Params: params})

	if q := m.failures[agent.ID]; len(q) > 0 {
		err := q[0]
		m.failures[agent.ID] = q[1:]
		m.mu.Unlock()
		return Completion{}, err
	}

	var text string
	if q := m.responses[agent.ID]; len(q) > 0 {
		text = q[0]
		m.responses[agent.ID] = q[1:]
	}
	m.mu.Unlock()

	if text == "" {
		last := ""
		if len(msgs) > 0 {
			last = msgs[len(msgs)-1].Content
		}
		text = fmt.Sprintf("Mock response from %s to: %s", agent.Label, last)
	}

	return Completion{
		Text:  text,
		Model: agent.Model,
		Usage: TokenUsage{PromptTokens: len(msgs), CompletionTokens: 1, TotalTokens: len(msgs) + 1},
	}, nil
}
