package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/engine"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/history"
)

func fastConfig() func(o *Options) {
	return func(o *Options) {
		o.Config = engine.DefaultConfig()
		o.Config.MaxRetries = 0
		o.Config.CancelGrace = 50 * time.Millisecond
	}
}

func TestSession_StartAndSubmit(t *testing.T) {
	roster := []core.Agent{
		core.NewAgent("A", "mock/a", core.RoleAssistant),
		core.NewAgent("B", "mock/b", core.RoleAssistant),
	}
	mock := gateway.NewMockInvoker()
	s := New(mock, fastConfig())

	id, err := s.Start(core.ModeStandard, roster)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.Submit(context.Background(), id, "hello"))

	st, err := s.State(id)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRoundPending, st.Phase)
	assert.Len(t, st.Rounds, 1)
}

func TestSession_StartRejectsInvalidRoster(t *testing.T) {
	s := New(gateway.NewMockInvoker(), fastConfig())

	_, err := s.Start(core.ModePvP, []core.Agent{
		core.NewAgent("A", "mock/a", core.RoleChallenger),
	})
	require.Error(t, err)
	var cfgErr *core.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, s.Conversations())
}

func TestSession_UnknownConversation(t *testing.T) {
	s := New(gateway.NewMockInvoker(), fastConfig())

	assert.Error(t, s.Submit(context.Background(), "nope", "hi"))
	assert.Error(t, s.Cancel("nope"))
	_, err := s.Subscribe("nope")
	assert.Error(t, err)
	_, err = s.State("nope")
	assert.Error(t, err)
}

func TestSession_SubmitAsyncSurfacesViaSubscribe(t *testing.T) {
	roster := []core.Agent{
		core.NewAgent("A", "mock/a", core.RoleProposer),
		core.NewAgent("B", "mock/b", core.RoleProposer),
	}
	mock := gateway.NewMockInvoker()
	mock.Queue(roster[0].ID, "42")
	mock.Queue(roster[1].ID, "42")

	s := New(mock, fastConfig())
	id, err := s.Start(core.ModeCollaborative, roster)
	require.NoError(t, err)

	ch, err := s.Subscribe(id)
	require.NoError(t, err)
	require.NoError(t, s.SubmitAsync(id, "the answer?"))

	var last core.State
	for st := range ch {
		last = st
	}
	assert.Equal(t, core.PhaseFinished, last.Phase)
	require.NotNil(t, last.Verdict)
	assert.Equal(t, "42", last.Verdict.Answer)
}

func TestSession_CancelAborts(t *testing.T) {
	roster := []core.Agent{core.NewAgent("A", "mock/a", core.RoleAssistant)}
	s := New(gateway.NewMockInvoker(), fastConfig())

	id, err := s.Start(core.ModeStandard, roster)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(id))

	st, err := s.State(id)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseAborted, st.Phase)
}

func TestSession_PersistsTerminalConversations(t *testing.T) {
	store, err := history.NewStore(t.TempDir())
	require.NoError(t, err)

	roster := []core.Agent{
		core.NewAgent("A", "mock/a", core.RoleProposer),
		core.NewAgent("B", "mock/b", core.RoleProposer),
	}
	mock := gateway.NewMockInvoker()
	mock.Queue(roster[0].ID, "42")
	mock.Queue(roster[1].ID, "42")

	s := New(mock, func(o *Options) {
		o.Config = engine.DefaultConfig()
		o.Config.MaxRetries = 0
		o.History = store
	})

	id, err := s.Start(core.ModeCollaborative, roster)
	require.NoError(t, err)
	require.NoError(t, s.Submit(context.Background(), id, "the answer?"))

	saved, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseFinished, saved.Phase)
	require.NotNil(t, saved.Verdict)
	assert.Equal(t, "42", saved.Verdict.Answer)
}

func TestSession_ConversationsSortedByUpdate(t *testing.T) {
	s := New(gateway.NewMockInvoker(), fastConfig())

	roster := func() []core.Agent {
		return []core.Agent{core.NewAgent("A", "mock/a", core.RoleAssistant)}
	}
	first, err := s.Start(core.ModeStandard, roster())
	require.NoError(t, err)
	second, err := s.Start(core.ModeStandard, roster())
	require.NoError(t, err)

	require.NoError(t, s.Submit(context.Background(), first, "bump"))

	convs := s.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, first, convs[0].ID)
	assert.Equal(t, second, convs[1].ID)
}

func TestSession_Remove(t *testing.T) {
	s := New(gateway.NewMockInvoker(), fastConfig())
	id, err := s.Start(core.ModeStandard, []core.Agent{core.NewAgent("A", "mock/a", core.RoleAssistant)})
	require.NoError(t, err)

	require.NoError(t, s.Remove(id))
	_, err = s.State(id)
	assert.Error(t, err)
}
