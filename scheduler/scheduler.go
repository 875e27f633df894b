// Package scheduler decides, per mode and round, which agents are invoked
// with which context. It produces immutable round plans; executing them is the
// engine's job. The scheduler also owns roster validation and proposal
// pseudonymization, since both are facts about who may see what.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/logging"
)

// Stage names the purpose of a plan within a round.
type Stage string

const (
	// StageAnswer covers Standard answers and collaborative proposals.
	StageAnswer Stage = "answer"
	// StageProposal is the independent proposal stage of Competitive mode.
	StageProposal Stage = "proposal"
	// StageVote is the ballot stage of Competitive mode.
	StageVote Stage = "vote"
	// StageIntent is the forced-choice poll of LLM's Choice mode.
	StageIntent Stage = "intent"
	// StageExchange is a PvP challenger exchange.
	StageExchange Stage = "exchange"
	// StageJudgment is the PvP moderator verdict.
	StageJudgment Stage = "judgment"
)

// Invocation is one agent call within a plan: the agent, the exact message
// context it may see, and the sampling parameters.
type Invocation struct {
	Agent   core.Agent
	Context []core.Message
	Params  gateway.Params
}

// Plan is one synchronized batch of invocations. Plans only ever reference
// material from rounds that are already resolved; a round never sees its own
// unresolved outputs.
type Plan struct {
	Round       int
	Stage       Stage
	Invocations []Invocation
	// Concurrent marks plans whose invocations may be issued in parallel.
	Concurrent bool
	// Aliases maps pseudonym to agent ID for vote plans, nil otherwise.
	Aliases map[string]string
}

// Proposal is one pseudonymized competitive submission.
type Proposal struct {
	AgentID string
	Alias   string
	Text    string
}

// Options configure a Scheduler.
type Options struct {
	// Templates override the built-in prompt set.
	Templates Templates
	// Params are applied to every invocation.
	Params gateway.Params
	// Logger records plan construction. Defaults to NoOp.
	Logger logging.Logger
}

// Scheduler builds round plans from conversation state.
type Scheduler struct {
	templates Templates
	params    gateway.Params
	logger    logging.Logger
}

// New creates a Scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{Templates: DefaultTemplates()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		templates: opts.Templates,
		params:    opts.Params,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Validate checks a mode/roster combination before any invocation is issued.
// A failed validation means the conversation never starts.
func Validate(mode core.Mode, agents []core.Agent) error {
	if !mode.Valid() {
		return core.NewConfigError(mode, "unknown mode %q", string(mode))
	}
	if len(agents) == 0 {
		return core.NewConfigError(mode, "roster is empty")
	}

	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return core.NewConfigError(mode, "agent %q has no ID", a.Label)
		}
		if _, dup := seen[a.ID]; dup {
			return core.NewConfigError(mode, "duplicate agent ID %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}

	switch mode {
	case core.ModeStandard:
		// Any non-empty roster works.
	case core.ModePvP:
		challengers, moderators := 0, 0
		labels := make(map[string]struct{}, 2)
		for _, a := range agents {
			switch a.Role {
			case core.RoleChallenger:
				challengers++
				// The moderator prompt and its verdict identify challengers
				// by label, so challenger labels must be distinct.
				label := strings.ToLower(strings.TrimSpace(a.Label))
				if label == "" {
					return core.NewConfigError(mode, "challenger %s has no label", a.ID)
				}
				if _, dup := labels[label]; dup {
					return core.NewConfigError(mode, "duplicate challenger label %q", a.Label)
				}
				labels[label] = struct{}{}
			case core.RoleModerator:
				moderators++
			}
		}
		if challengers != 2 {
			return core.NewConfigError(mode, "requires exactly 2 challengers, got %d", challengers)
		}
		if moderators != 1 {
			return core.NewConfigError(mode, "requires exactly 1 moderator, got %d", moderators)
		}
	case core.ModeCollaborative, core.ModeCompetitive, core.ModeChoice:
		if len(agents) < 2 {
			return core.NewConfigError(mode, "requires at least 2 agents, got %d", len(agents))
		}
	}
	return nil
}

// StandardPlan fans the latest user message out to every agent's isolated
// thread.
func (s *Scheduler) StandardPlan(st *core.State) Plan {
	plan := Plan{Round: st.NextRound(), Stage: StageAnswer, Concurrent: true}
	for _, a := range st.Agents {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: st.Thread(a.ID),
			Params:  s.params,
		})
	}
	return plan
}

// CollabPlan builds a collaborative round. With no prior proposals every agent
// answers the question fresh; otherwise each agent reviews the full proposal
// set and either restates or improves.
func (s *Scheduler) CollabPlan(st *core.State, question string, prior map[string]string) Plan {
	round := st.NextRound()
	var prompt string
	if len(prior) == 0 {
		prompt = Render(s.templates.CollabInitial, map[string]string{
			"user_question": question,
		})
	} else {
		prompt = Render(s.templates.CollabRefine, map[string]string{
			"user_question": question,
			"proposals":     s.proposalBlock(st, prior),
		})
	}

	s.logger.Debug("collaborative plan built round=%d prior=%d", round, len(prior))
	plan := Plan{Round: round, Stage: StageAnswer, Concurrent: true}
	for _, a := range st.Agents {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// ProposalPlan asks every agent for an independent competitive proposal. No
// agent sees any other agent's material.
func (s *Scheduler) ProposalPlan(st *core.State, question string) Plan {
	round := st.NextRound()
	prompt := Render(s.templates.Proposal, map[string]string{
		"user_question": question,
	})

	plan := Plan{Round: round, Stage: StageProposal, Concurrent: true}
	for _, a := range st.Agents {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// Pseudonymize assigns stable aliases to successful proposals in roster
// order. The alias hides the proposer's identity from voters; the returned
// slice preserves roster order so repeated calls are deterministic.
func (s *Scheduler) Pseudonymize(st *core.State, texts map[string]string) []Proposal {
	var out []Proposal
	for _, a := range st.Agents {
		text, ok := texts[a.ID]
		if !ok {
			continue
		}
		out = append(out, Proposal{
			AgentID: a.ID,
			Alias:   fmt.Sprintf("Proposer %d", len(out)+1),
			Text:    text,
		})
	}
	return out
}

// VotePlan asks every proposer to elect the best pseudonymized proposal.
// Voters see every submission, their own included; self-votes are discarded
// at tally time rather than hidden here.
func (s *Scheduler) VotePlan(st *core.State, question string, proposals []Proposal) Plan {
	var block strings.Builder
	aliases := make([]string, 0, len(proposals))
	aliasMap := make(map[string]string, len(proposals))
	for _, p := range proposals {
		fmt.Fprintf(&block, "%s:\n%s\n\n", p.Alias, p.Text)
		aliases = append(aliases, p.Alias)
		aliasMap[p.Alias] = p.AgentID
	}

	prompt := Render(s.templates.Vote, map[string]string{
		"user_question": question,
		"proposals":     strings.TrimRight(block.String(), "\n"),
		"aliases":       strings.Join(aliases, ", "),
	})

	round := st.NextRound()
	s.logger.Debug("vote plan built round=%d proposals=%d", round, len(proposals))
	plan := Plan{Round: round, Stage: StageVote, Concurrent: true, Aliases: aliasMap}
	// Every roster agent votes, including those whose own proposal failed.
	for _, a := range st.Agents {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// IntentPlan polls every agent for the collaborate/compete forced choice.
func (s *Scheduler) IntentPlan(st *core.State, question string) Plan {
	round := st.NextRound()
	prompt := Render(s.templates.Intent, map[string]string{
		"user_question": question,
	})

	plan := Plan{Round: round, Stage: StageIntent, Concurrent: true}
	for _, a := range st.Agents {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// ExchangePlan builds a PvP exchange round for both challengers. The first
// exchange presents the bare question; later exchanges replay the resolved
// transcript and ask for a rebuttal.
func (s *Scheduler) ExchangePlan(st *core.State, question string) Plan {
	round := st.NextRound()
	challengers := st.AgentsByRole(core.RoleChallenger)
	transcript := DebateTranscript(st, challengers)

	var prompt string
	if transcript == "" {
		prompt = question
	} else {
		prompt = Render(s.templates.Rebuttal, map[string]string{
			"user_question": question,
			"transcript":    transcript,
		})
	}

	plan := Plan{Round: round, Stage: StageExchange, Concurrent: true}
	for _, a := range challengers {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   a,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// JudgmentPlan asks the PvP moderator for a verdict over the full exchange.
func (s *Scheduler) JudgmentPlan(st *core.State, question string) Plan {
	round := st.NextRound()
	challengers := st.AgentsByRole(core.RoleChallenger)
	moderator := st.AgentsByRole(core.RoleModerator)

	vars := map[string]string{
		"user_question": question,
		"transcript":    DebateTranscript(st, challengers),
	}
	if len(challengers) == 2 {
		vars["challenger_a"] = challengers[0].Label
		vars["challenger_b"] = challengers[1].Label
	}
	prompt := Render(s.templates.Moderator, vars)

	plan := Plan{Round: round, Stage: StageJudgment}
	for _, m := range moderator {
		plan.Invocations = append(plan.Invocations, Invocation{
			Agent:   m,
			Context: []core.Message{core.NewMessage(core.AuthorUser, prompt, round)},
			Params:  s.params,
		})
	}
	return plan
}

// DebateTranscript renders the challengers' resolved exchange rounds as a
// labeled block for rebuttal and judgment prompts.
func DebateTranscript(st *core.State, challengers []core.Agent) string {
	var b strings.Builder
	exchange := 0
	for _, r := range st.Rounds {
		if r.Outcome != core.OutcomeAnswered {
			continue
		}
		exchange++
		for _, a := range challengers {
			resp, ok := r.Response(a.ID)
			if !ok || !resp.OK() {
				continue
			}
			fmt.Fprintf(&b, "Round %d, %s:\n%s\n\n", exchange, a.Label, resp.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// proposalBlock renders prior proposals labeled by agent, in roster order.
func (s *Scheduler) proposalBlock(st *core.State, proposals map[string]string) string {
	var b strings.Builder
	for _, a := range st.Agents {
		text, ok := proposals[a.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", a.Label, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
