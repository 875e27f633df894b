package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	a := NewAgent("GPT", "openai/gpt-4o", RoleProposer)
	b := NewAgent("Claude", "anthropic/claude-sonnet-4", RoleProposer)

	st := NewState(ModeCompetitive, []Agent{a, b})
	assert.Equal(t, PhaseInitializing, st.Phase)
	assert.Len(t, st.Agents, 2)
	assert.Equal(t, 0, st.NextRound())

	got, ok := st.Agent(a.ID)
	require.True(t, ok)
	assert.Equal(t, "GPT", got.Label)

	_, ok = st.Agent("missing")
	assert.False(t, ok)
}

func TestState_Thread_IsolatesAgents(t *testing.T) {
	a := NewAgent("A", "m1", RoleAssistant)
	b := NewAgent("B", "m2", RoleAssistant)
	st := NewState(ModeStandard, []Agent{a, b})

	st.AppendMessage(NewMessage(AuthorUser, "hello", 0))
	st.AppendMessage(NewMessage(a.ID, "hi from A", 0))
	st.AppendMessage(NewMessage(b.ID, "hi from B", 0))

	thread := st.Thread(a.ID)
	require.Len(t, thread, 2)
	assert.Equal(t, AuthorUser, thread[0].Author)
	assert.Equal(t, a.ID, thread[1].Author)
	for _, m := range thread {
		assert.NotEqual(t, b.ID, m.Author)
	}
}

func TestState_MessagesBefore(t *testing.T) {
	a := NewAgent("A", "m1", RoleProposer)
	st := NewState(ModeCollaborative, []Agent{a})

	st.AppendMessage(NewMessage(AuthorUser, "q", 0))
	st.AppendMessage(NewMessage(a.ID, "p0", 0))
	st.AppendMessage(NewMessage(a.ID, "p1", 1))

	assert.Len(t, st.MessagesBefore(1), 2)
	assert.Len(t, st.MessagesBefore(2), 3)
	assert.Empty(t, st.MessagesBefore(0))
}

func TestState_Clone_IsDeep(t *testing.T) {
	a := NewAgent("A", "m1", RoleProposer)
	st := NewState(ModeCompetitive, []Agent{a})
	st.AppendMessage(NewMessage(AuthorUser, "q", 0))
	st.AppendRound(Round{
		Index:     0,
		Outcome:   OutcomeVoted,
		Responses: []Response{{AgentID: a.ID, Text: "p"}},
		Votes:     []Vote{{Voter: a.ID, Candidate: "other"}},
	})
	st.Verdict = &Verdict{Winner: "other", Tally: map[string]int{"other": 1}}

	snap := st.Clone()
	snap.Transcript[0].Content = "mutated"
	snap.Rounds[0].Responses[0].Text = "mutated"
	snap.Verdict.Tally["other"] = 99

	assert.Equal(t, "q", st.Transcript[0].Content)
	assert.Equal(t, "p", st.Rounds[0].Responses[0].Text)
	assert.Equal(t, 1, st.Verdict.Tally["other"])
}

func TestRound_Successes(t *testing.T) {
	r := Round{Responses: []Response{
		{AgentID: "a", Text: "ok"},
		{AgentID: "b", Err: "timeout"},
		{AgentID: "c", Text: "ok"},
	}}
	assert.Equal(t, 2, r.Successes())

	resp, ok := r.Response("b")
	require.True(t, ok)
	assert.False(t, resp.OK())
}

func TestPhase_Terminal(t *testing.T) {
	assert.True(t, PhaseFinished.Terminal())
	assert.True(t, PhaseAborted.Terminal())
	assert.False(t, PhaseRoundPending.Terminal())
	assert.False(t, PhaseRoundResolving.Terminal())
	assert.False(t, PhaseInitializing.Terminal())
}

func TestMode_Valid(t *testing.T) {
	for _, m := range []Mode{ModeStandard, ModePvP, ModeCollaborative, ModeCompetitive, ModeChoice} {
		assert.True(t, m.Valid(), m)
		assert.NotEmpty(t, m.Name())
		assert.NotEmpty(t, m.Description())
	}
	assert.False(t, Mode("bogus").Valid())
}

func TestVerdict_Decisive(t *testing.T) {
	assert.True(t, Verdict{Winner: "a"}.Decisive())
	assert.True(t, Verdict{Winner: NoWinner, Answer: "agreed text"}.Decisive())
	assert.False(t, Verdict{Winner: NoWinner}.Decisive())
}
