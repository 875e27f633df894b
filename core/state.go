package core

import "time"

// Phase is the mode state machine's position.
type Phase string

const (
	// PhaseInitializing covers roster/mode validation before any invocation.
	PhaseInitializing Phase = "initializing"
	// PhaseRoundPending means the machine is idle, waiting for the next
	// round plan (or the next user message).
	PhaseRoundPending Phase = "round_pending"
	// PhaseRoundResolving means a round's invocations are in flight.
	PhaseRoundResolving Phase = "round_resolving"
	// PhaseFinished is terminal: a verdict was produced.
	PhaseFinished Phase = "finished"
	// PhaseAborted is terminal: the conversation failed or was cancelled.
	PhaseAborted Phase = "aborted"
)

// Terminal reports whether no further rounds will be issued.
func (p Phase) Terminal() bool { return p == PhaseFinished || p == PhaseAborted }

// State is the full conversation state owned by one mode state machine. It is
// deliberately not self-locking: the owning machine serializes all mutations
// and hands out deep copies via Clone.
type State struct {
	ID      string  `json:"id"`
	Mode    Mode    `json:"mode"`
	Agents  []Agent `json:"agents"`
	Rounds  []Round `json:"rounds"`
	// Transcript holds the ordered shared message history. Standard mode
	// keeps per-agent threads instead; see Thread.
	Transcript []Message `json:"transcript"`
	Phase      Phase     `json:"phase"`
	Verdict    *Verdict  `json:"verdict,omitempty"`
	// Err records the failure that drove the state to PhaseAborted.
	Err     string    `json:"err,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// NewState creates an initializing conversation state for the given roster.
func NewState(mode Mode, agents []Agent) *State {
	now := time.Now().UTC()
	roster := make([]Agent, len(agents))
	copy(roster, agents)
	return &State{
		ID:      NewID(),
		Mode:    mode,
		Agents:  roster,
		Phase:   PhaseInitializing,
		Created: now,
		Updated: now,
	}
}

// Agent returns the roster entry with the given ID.
func (s *State) Agent(id string) (Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// AgentsByRole returns the roster entries holding the given role, in roster
// order.
func (s *State) AgentsByRole(role Role) []Agent {
	var out []Agent
	for _, a := range s.Agents {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// NextRound returns the index the next round will carry.
func (s *State) NextRound() int { return len(s.Rounds) }

// AppendRound freezes a resolved round into history.
func (s *State) AppendRound(r Round) {
	s.Rounds = append(s.Rounds, r)
	s.Updated = time.Now().UTC()
}

// AppendMessage appends a transcript message.
func (s *State) AppendMessage(m Message) {
	s.Transcript = append(s.Transcript, m)
	s.Updated = time.Now().UTC()
}

// Thread returns the isolated Standard-mode thread for one agent: every user
// and system message plus that agent's own messages, in transcript order.
func (s *State) Thread(agentID string) []Message {
	var out []Message
	for _, m := range s.Transcript {
		if m.Author == AuthorUser || m.Author == AuthorSystem || m.Author == agentID {
			out = append(out, m)
		}
	}
	return out
}

// MessagesBefore returns the transcript entries with round index < round.
func (s *State) MessagesBefore(round int) []Message {
	var out []Message
	for _, m := range s.Transcript {
		if m.Round < round {
			out = append(out, m)
		}
	}
	return out
}

// LastUserMessage returns the most recent user-authored transcript entry.
func (s *State) LastUserMessage() (Message, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].IsUser() {
			return s.Transcript[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy safe for concurrent readers.
func (s *State) Clone() State {
	out := *s
	out.Agents = make([]Agent, len(s.Agents))
	copy(out.Agents, s.Agents)
	out.Transcript = make([]Message, len(s.Transcript))
	copy(out.Transcript, s.Transcript)
	out.Rounds = make([]Round, len(s.Rounds))
	for i, r := range s.Rounds {
		rc := r
		rc.Responses = make([]Response, len(r.Responses))
		copy(rc.Responses, r.Responses)
		if r.Votes != nil {
			rc.Votes = make([]Vote, len(r.Votes))
			copy(rc.Votes, r.Votes)
		}
		out.Rounds[i] = rc
	}
	if s.Verdict != nil {
		v := *s.Verdict
		if s.Verdict.Tally != nil {
			v.Tally = make(map[string]int, len(s.Verdict.Tally))
			for k, n := range s.Verdict.Tally {
				v.Tally[k] = n
			}
		}
		out.Verdict = &v
	}
	return out
}
