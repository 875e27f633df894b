package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
)

func TestTallyVotes_StrictMajority(t *testing.T) {
	a := New()
	verdict := a.TallyVotes(0, []core.Vote{
		{Voter: "a", Candidate: "b"},
		{Voter: "c", Candidate: "b"},
		{Voter: "b", Candidate: "a"},
	})
	assert.Equal(t, "b", verdict.Winner)
	assert.Equal(t, map[string]int{"b": 2, "a": 1}, verdict.Tally)
	assert.True(t, verdict.Decisive())
}

func TestTallyVotes_DiscardsSelfVotes(t *testing.T) {
	a := New()
	verdict := a.TallyVotes(0, []core.Vote{
		{Voter: "a", Candidate: "a"}, // discarded
		{Voter: "b", Candidate: "a"},
		{Voter: "c", Candidate: "a"},
	})
	assert.Equal(t, "a", verdict.Winner)
	assert.Equal(t, 2, verdict.Tally["a"])
}

func TestTallyVotes_TieIsNoConsensus(t *testing.T) {
	a := New()
	verdict := a.TallyVotes(0, []core.Vote{
		{Voter: "a", Candidate: "b"},
		{Voter: "b", Candidate: "a"},
	})
	assert.Equal(t, core.NoWinner, verdict.Winner)
	assert.False(t, verdict.Decisive())
}

func TestTallyVotes_PluralityWithoutMajorityIsNoConsensus(t *testing.T) {
	a := New()
	verdict := a.TallyVotes(0, []core.Vote{
		{Voter: "a", Candidate: "b"},
		{Voter: "c", Candidate: "b"},
		{Voter: "b", Candidate: "d"},
		{Voter: "d", Candidate: "a"},
		{Voter: "e", Candidate: "a"},
		{Voter: "f", Candidate: "d"},
	})
	// 2/2/2 split across six valid votes.
	assert.Equal(t, core.NoWinner, verdict.Winner)
}

func TestTallyVotes_AllSelfVotes(t *testing.T) {
	a := New()
	verdict := a.TallyVotes(3, []core.Vote{
		{Voter: "a", Candidate: "a"},
		{Voter: "b", Candidate: "b"},
	})
	assert.Equal(t, core.NoWinner, verdict.Winner)
	assert.Equal(t, 3, verdict.Round)
	assert.Contains(t, verdict.Rationale, "no valid ballots")
}

func TestParseVote_JSON(t *testing.T) {
	a := New()
	aliases := map[string]string{"Proposer 1": "id-a", "Proposer 2": "id-b"}

	v, err := a.ParseVote("id-c", `I considered both. {"vote": "Proposer 2", "rationale": "more precise"}`, aliases)
	require.NoError(t, err)
	assert.Equal(t, "id-b", v.Candidate)
	assert.Equal(t, "more precise", v.Rationale)
	assert.Equal(t, "id-c", v.Voter)
}

func TestParseVote_FreeTextFallback(t *testing.T) {
	a := New()
	aliases := map[string]string{"Proposer 1": "id-a", "Proposer 2": "id-b"}

	v, err := a.ParseVote("id-c", "I vote for proposer 1 because it is clearer.", aliases)
	require.NoError(t, err)
	assert.Equal(t, "id-a", v.Candidate)
}

func TestParseVote_Unparseable(t *testing.T) {
	a := New()
	_, err := a.ParseVote("id-c", "they are all equally good", map[string]string{"Proposer 1": "id-a"})
	assert.Error(t, err)
}

func TestParseIntent(t *testing.T) {
	a := New()

	tests := []struct {
		text string
		want Intent
	}{
		{"collaborate", IntentCollaborate},
		{"I choose to COMPETE.", IntentCompete},
		{`{"choice": "collaborate"}`, IntentCollaborate},
		{"I'd rather collaborate than compete", IntentCollaborate},
		{"Competing sounds fun", IntentCompete},
	}
	for _, tt := range tests {
		got, err := a.ParseIntent(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, err := a.ParseIntent("I will think about it")
	assert.Error(t, err)
}

func TestTallyIntents_TieRoutesToCompete(t *testing.T) {
	a := New()
	assert.Equal(t, IntentCompete, a.TallyIntents([]Intent{IntentCollaborate, IntentCompete}))
	assert.Equal(t, IntentCollaborate, a.TallyIntents([]Intent{IntentCollaborate, IntentCollaborate, IntentCompete}))
	assert.Equal(t, IntentCompete, a.TallyIntents(nil))
}

func TestParseJudgment(t *testing.T) {
	a := New()
	labels := map[string]string{"GPT": "id-a", "Claude": "id-b"}

	winner, draw, rationale, err := a.ParseJudgment(
		`Both argued well. {"winner": "Claude", "rationale": "stronger evidence"}`, labels)
	require.NoError(t, err)
	assert.False(t, draw)
	assert.Equal(t, "id-b", winner)
	assert.Equal(t, "stronger evidence", rationale)

	_, draw, _, err = a.ParseJudgment(`{"winner": "draw", "rationale": "even"}`, labels)
	require.NoError(t, err)
	assert.True(t, draw)

	winner, draw, _, err = a.ParseJudgment("After careful review.\nThe winner is GPT", labels)
	require.NoError(t, err)
	assert.False(t, draw)
	assert.Equal(t, "id-a", winner)

	_, _, _, err = a.ParseJudgment("inconclusive rambling", labels)
	assert.Error(t, err)
}

func TestParseJudgment_LabelBeatsDrawWording(t *testing.T) {
	a := New()
	labels := map[string]string{"Alpha": "id-a", "Beta": "id-b"}

	winner, draw, _, err := a.ParseJudgment("Beta wins despite a tie in round 2", labels)
	require.NoError(t, err)
	assert.False(t, draw)
	assert.Equal(t, "id-b", winner)

	_, draw, _, err = a.ParseJudgment("The debate ends in a draw.", labels)
	require.NoError(t, err)
	assert.True(t, draw)

	_, draw, _, err = a.ParseJudgment("It is a draw between Alpha and Beta.", labels)
	require.NoError(t, err)
	assert.True(t, draw)

	// Draw keywords only count as whole words.
	_, _, _, err = a.ParseJudgment("The tied entities deserve scrutiny", labels)
	assert.Error(t, err)

	// Naming both challengers without a draw keyword is ambiguous, not a
	// coin flip.
	_, _, _, err = a.ParseJudgment("Alpha was sharper, though Beta was thorough", labels)
	assert.Error(t, err)
}

func TestExactMatch(t *testing.T) {
	p := ExactMatch{}

	ok, answer, err := p.Converged(context.Background(), "q", map[string]string{
		"a": "  42 ",
		"b": "42",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", answer)

	ok, _, err = p.Converged(context.Background(), "q", map[string]string{
		"a": "42",
		"b": "forty-two",
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, _ = p.Converged(context.Background(), "q", nil)
	assert.False(t, ok)
}

func TestJudgePolicy(t *testing.T) {
	judge := core.NewAgent("Judge", "mock/judge", core.RoleJudge)
	mock := gateway.NewMockInvoker()
	mock.Queue(judge.ID, "YES\nThey express the same answer.")

	p := NewJudgePolicy(mock, judge)
	ok, answer, err := p.Converged(context.Background(), "q", map[string]string{
		"a-id": "forty two",
		"b-id": "the answer is forty two",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, answer)

	mock.Queue(judge.ID, "NO")
	ok, _, err = p.Converged(context.Background(), "q", map[string]string{"a-id": "x", "b-id": "y"})
	require.NoError(t, err)
	assert.False(t, ok)

	mock.QueueFailure(judge.ID, gateway.NewFailure(gateway.Unavailable, "down"))
	_, _, err = p.Converged(context.Background(), "q", map[string]string{"a-id": "x", "b-id": "y"})
	assert.Error(t, err)
}
