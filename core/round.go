package core

// Outcome classifies a resolved round.
type Outcome string

const (
	// OutcomePending marks a round still collecting invocations. Pending
	// rounds never appear in State.Rounds.
	OutcomePending Outcome = "pending"
	// OutcomeAnswered is the Standard-mode outcome: every surviving thread
	// produced an independent answer.
	OutcomeAnswered Outcome = "answered"
	// OutcomeAgreed marks a Collaborative round whose proposals converged.
	OutcomeAgreed Outcome = "agreed"
	// OutcomeDisagreed marks a Collaborative round without convergence.
	OutcomeDisagreed Outcome = "disagreed"
	// OutcomeVoted marks a Competitive round with a tallied vote.
	OutcomeVoted Outcome = "voted"
	// OutcomeJudged marks a PvP round resolved by the moderator.
	OutcomeJudged Outcome = "judged"
	// OutcomeFailed marks a round that fell below its mode's minimum
	// successful responses.
	OutcomeFailed Outcome = "failed"
)

// Response is one agent's slot in a round: either the completion text or the
// failure that exhausted its retries. Exactly one of Text / Err is meaningful.
type Response struct {
	AgentID string `json:"agent_id"`
	Text    string `json:"text,omitempty"`
	Err     string `json:"err,omitempty"`
}

// OK reports whether the slot holds a usable completion.
func (r Response) OK() bool { return r.Err == "" }

// Vote is one agent's ballot in a Competitive round. The invariant that a
// voter never elects itself is enforced at tally time: self-votes are
// discarded with a logged anomaly, never treated as fatal.
type Vote struct {
	Voter     string `json:"voter"`
	Candidate string `json:"candidate"`
	Rationale string `json:"rationale,omitempty"`
}

// Round is one synchronized batch of invocations plus its resolved outcome.
// The engine freezes a round before appending it to history; consumers must
// treat appended rounds as immutable.
type Round struct {
	Index     int        `json:"index"`
	Outcome   Outcome    `json:"outcome"`
	Responses []Response `json:"responses"`
	Votes     []Vote     `json:"votes,omitempty"`
}

// Successes counts the slots holding usable completions.
func (r Round) Successes() int {
	n := 0
	for _, resp := range r.Responses {
		if resp.OK() {
			n++
		}
	}
	return n
}

// Response returns the slot for the given agent, if present.
func (r Round) Response(agentID string) (Response, bool) {
	for _, resp := range r.Responses {
		if resp.AgentID == agentID {
			return resp, true
		}
	}
	return Response{}, false
}

// NoWinner is the Verdict.Winner value recorded when no candidate reached a
// strict majority or collaboration produced no agreement.
const NoWinner = "no consensus"

// Verdict is the terminal decision of a conversation.
type Verdict struct {
	// Winner is the winning agent's ID, or NoWinner.
	Winner string `json:"winner"`
	// Answer carries the agreed text for Collaborative outcomes.
	Answer string `json:"answer,omitempty"`
	// Tally holds valid votes per candidate for Competitive outcomes.
	Tally map[string]int `json:"tally,omitempty"`
	// Rationale carries the moderator's reasoning for PvP outcomes, or a
	// short note explaining a non-consensus result.
	Rationale string `json:"rationale,omitempty"`
	// Round is the round index at which the verdict was reached.
	Round int `json:"round"`
}

// Decisive reports whether the verdict names a winner or an agreed answer.
func (v Verdict) Decisive() bool {
	return v.Answer != "" || (v.Winner != "" && v.Winner != NoWinner)
}
