package core

// Role labels an agent's function within a single conversation. Roles are
// mode-specific and assigned when the conversation starts; they are not a
// property of the underlying model endpoint.
type Role string

const (
	// RoleAssistant is the default role in Standard mode.
	RoleAssistant Role = "assistant"
	// RoleChallenger marks one of the two competing agents in PvP mode.
	RoleChallenger Role = "challenger"
	// RoleModerator marks the judging agent in PvP mode.
	RoleModerator Role = "moderator"
	// RoleProposer marks a proposal-producing agent in Competitive and
	// Collaborative modes.
	RoleProposer Role = "proposer"
	// RoleJudge marks an agent used by the judge-based convergence policy.
	RoleJudge Role = "judge"
)

// Mode identifies the interaction protocol of a conversation.
type Mode string

const (
	// ModeStandard runs each agent in an isolated thread with no
	// cross-agent visibility.
	ModeStandard Mode = "standard"
	// ModePvP pits two challengers against each other with a moderator
	// delivering the verdict.
	ModePvP Mode = "pvp"
	// ModeCollaborative has all agents refine a joint answer until their
	// proposals converge.
	ModeCollaborative Mode = "collaborative"
	// ModeCompetitive has all agents propose independently and then vote
	// on pseudonymized proposals.
	ModeCompetitive Mode = "competitive"
	// ModeChoice lets the agents themselves pick between the collaborative
	// and competitive protocols each round.
	ModeChoice Mode = "choice"
)

// Name returns the human-readable mode name.
func (m Mode) Name() string {
	switch m {
	case ModeStandard:
		return "Standard"
	case ModePvP:
		return "PvP"
	case ModeCollaborative:
		return "Collaborative"
	case ModeCompetitive:
		return "Competitive"
	case ModeChoice:
		return "LLM's Choice"
	default:
		return string(m)
	}
}

// Description returns the one-line mode summary shown by presentation layers.
func (m Mode) Description() string {
	switch m {
	case ModeStandard:
		return "Independent chats, one per model"
	case ModePvP:
		return "2 bots compete, 1 moderator judges"
	case ModeCollaborative:
		return "Multiple bots jointly agree on best solution"
	case ModeCompetitive:
		return "All bots vote for the best (can't vote for their own)"
	case ModeChoice:
		return "LLMs decide to collaborate or compete"
	default:
		return ""
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModePvP, ModeCollaborative, ModeCompetitive, ModeChoice:
		return true
	}
	return false
}

// Agent is an immutable handle to one configured model endpoint participating
// in a conversation. Two Agents are the same participant iff their IDs match.
type Agent struct {
	// ID uniquely identifies the participant within a conversation.
	ID string `json:"id"`
	// Label is the display name shown in transcripts and prompts.
	Label string `json:"label"`
	// Model is the provider-specific model identifier.
	Model string `json:"model"`
	// Role is the mode-specific function assigned at conversation start.
	Role Role `json:"role"`
}

// NewAgent constructs an agent handle with a generated ID.
func NewAgent(label, model string, role Role) Agent {
	return Agent{ID: NewID(), Label: label, Model: model, Role: role}
}
