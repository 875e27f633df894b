package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/gtllm/aggregate"
	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/scheduler"
)

// runStandard fans the latest user message out to every isolated thread. The
// round resolves as long as at least one agent answers; failed slots keep
// their error visible in the round record.
func (m *Machine) runStandard(ctx context.Context) error {
	var plan scheduler.Plan
	m.withState(func(st *core.State) {
		plan = m.sched.StandardPlan(st)
	})

	slots := m.executeRound(ctx, plan)
	if err := authFailure(slots); err != nil {
		return err
	}

	round := core.Round{Index: plan.Round, Outcome: core.OutcomeAnswered, Responses: responsesOf(slots)}
	if round.Successes() == 0 {
		return m.failRound(plan, slots, 1, "every agent failed to answer")
	}

	ok := m.advance(func(st *core.State) {
		for _, s := range slots {
			if s.err == nil {
				st.AppendMessage(core.NewMessage(s.agent.ID, s.text, plan.Round))
			}
		}
		st.AppendRound(round)
		st.Phase = core.PhaseRoundPending
		m.publishLocked()
	})
	if !ok {
		return errConversationClosed
	}
	return nil
}

// runCollaborative loops proposal rounds until the convergence policy accepts
// the set or the round cap is exhausted. A cap exhaustion is a Finished
// conversation with a no-consensus verdict; the final proposals stay in the
// transcript for the user to pick from.
func (m *Machine) runCollaborative(ctx context.Context, question string) error {
	var prior map[string]string

	for i := 0; i < m.cfg.RoundCap; i++ {
		m.setResolving()

		var plan scheduler.Plan
		m.withState(func(st *core.State) {
			plan = m.sched.CollabPlan(st, question, prior)
		})

		slots := m.executeRound(ctx, plan)
		if err := authFailure(slots); err != nil {
			return err
		}

		proposals := successMap(slots)
		if len(proposals) == 0 {
			return m.failRound(plan, slots, 1, "no collaborative proposals succeeded")
		}

		ok := m.advance(func(st *core.State) {
			for _, s := range slots {
				if s.err == nil {
					st.AppendMessage(core.NewMessage(s.agent.ID, s.text, plan.Round))
				}
			}
		})
		if !ok {
			return errConversationClosed
		}

		converged, answer, err := m.cfg.Convergence.Converged(ctx, question, proposals)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			m.logger.Warn("convergence policy failed, treating round as disagreement: %v", err)
			converged = false
		}

		round := core.Round{Index: plan.Round, Responses: responsesOf(slots)}
		if converged {
			round.Outcome = core.OutcomeAgreed
			return m.finish(round, &core.Verdict{Answer: answer, Round: plan.Round})
		}

		round.Outcome = core.OutcomeDisagreed
		ok = m.advance(func(st *core.State) {
			st.AppendRound(round)
			st.Phase = core.PhaseRoundPending
			m.publishLocked()
		})
		if !ok {
			return errConversationClosed
		}
		prior = proposals
	}

	var lastRound int
	m.withState(func(st *core.State) {
		lastRound = st.NextRound() - 1
	})
	verdict := &core.Verdict{
		Winner:    core.NoWinner,
		Rationale: fmt.Sprintf("no convergence after %d rounds", m.cfg.RoundCap),
		Round:     lastRound,
	}
	ok := m.advance(func(st *core.State) {
		st.Verdict = verdict
		st.Phase = core.PhaseFinished
		m.publishLocked()
		m.closeSubsLocked()
	})
	if !ok {
		return errConversationClosed
	}
	return nil
}

// runCompetitive collects independent proposals, pseudonymizes them, collects
// ballots and tallies the verdict. The round survives individual failures as
// long as two proposals remain; lost or unparseable ballots simply never
// count.
func (m *Machine) runCompetitive(ctx context.Context, question string) error {
	m.setResolving()

	var plan scheduler.Plan
	m.withState(func(st *core.State) {
		plan = m.sched.ProposalPlan(st, question)
	})

	slots := m.executeRound(ctx, plan)
	if err := authFailure(slots); err != nil {
		return err
	}

	texts := successMap(slots)
	if len(texts) < 2 {
		return m.failRound(plan, slots, 2, "fewer than two proposals succeeded")
	}

	var proposals []scheduler.Proposal
	ok := m.advance(func(st *core.State) {
		for _, s := range slots {
			if s.err == nil {
				st.AppendMessage(core.NewMessage(s.agent.ID, s.text, plan.Round))
			}
		}
		proposals = m.sched.Pseudonymize(st, texts)
	})
	if !ok {
		return errConversationClosed
	}

	var votePlan scheduler.Plan
	m.withState(func(st *core.State) {
		votePlan = m.sched.VotePlan(st, question, proposals)
	})

	voteSlots := m.executeRound(ctx, votePlan)
	if err := authFailure(voteSlots); err != nil {
		return err
	}

	var votes []core.Vote
	for _, s := range voteSlots {
		if s.err != nil {
			m.logger.Warn("ballot lost agent=%s: %v", s.agent.Label, s.err)
			continue
		}
		v, err := m.agg.ParseVote(s.agent.ID, s.text, votePlan.Aliases)
		if err != nil {
			m.logger.Warn("ballot unparseable agent=%s: %v", s.agent.Label, err)
			continue
		}
		votes = append(votes, v)
	}

	verdict := m.agg.TallyVotes(plan.Round, votes)
	round := core.Round{
		Index:     plan.Round,
		Outcome:   core.OutcomeVoted,
		Responses: responsesOf(slots),
		Votes:     votes,
	}
	return m.finish(round, &verdict)
}

// runPvP alternates challenger exchanges and closes with the moderator's
// judgment. PvP has no degraded form: a missing challenger response or a
// failed moderator aborts the conversation.
func (m *Machine) runPvP(ctx context.Context, question string) error {
	for e := 0; e < m.cfg.PvPRounds; e++ {
		m.setResolving()

		var plan scheduler.Plan
		m.withState(func(st *core.State) {
			plan = m.sched.ExchangePlan(st, question)
		})

		slots := m.executeRound(ctx, plan)
		if err := authFailure(slots); err != nil {
			return err
		}

		round := core.Round{Index: plan.Round, Outcome: core.OutcomeAnswered, Responses: responsesOf(slots)}
		if round.Successes() < len(slots) {
			return m.failRound(plan, slots, len(slots), "both challengers must answer")
		}

		ok := m.advance(func(st *core.State) {
			for _, s := range slots {
				st.AppendMessage(core.NewMessage(s.agent.ID, s.text, plan.Round))
			}
			st.AppendRound(round)
			st.Phase = core.PhaseRoundPending
			m.publishLocked()
		})
		if !ok {
			return errConversationClosed
		}
	}

	m.setResolving()

	var jplan scheduler.Plan
	labels := map[string]string{}
	m.withState(func(st *core.State) {
		jplan = m.sched.JudgmentPlan(st, question)
		for _, a := range st.AgentsByRole(core.RoleChallenger) {
			labels[a.Label] = a.ID
		}
	})

	jslots := m.executeRound(ctx, jplan)
	if err := authFailure(jslots); err != nil {
		return err
	}
	if len(jslots) == 0 || jslots[0].err != nil {
		return m.failRound(jplan, jslots, 1, "moderator produced no verdict")
	}

	moderator := jslots[0]
	winnerID, draw, rationale, err := m.agg.ParseJudgment(moderator.text, labels)
	if err != nil {
		return m.failRound(jplan, jslots, 1, "unparseable moderator verdict")
	}
	if rationale == "" {
		rationale = moderator.text
	}

	verdict := &core.Verdict{Winner: winnerID, Rationale: rationale, Round: jplan.Round}
	if draw {
		verdict.Winner = core.NoWinner
	}

	ok := m.advance(func(st *core.State) {
		st.AppendMessage(core.NewMessage(moderator.agent.ID, moderator.text, jplan.Round))
	})
	if !ok {
		return errConversationClosed
	}
	round := core.Round{Index: jplan.Round, Outcome: core.OutcomeJudged, Responses: responsesOf(jslots)}
	return m.finish(round, verdict)
}

// runChoice polls every agent's engagement preference, then routes the round
// through the collaborative or competitive protocol. Ties, and any poll
// without a strict collaborate majority, compete.
func (m *Machine) runChoice(ctx context.Context, question string) error {
	var plan scheduler.Plan
	m.withState(func(st *core.State) {
		plan = m.sched.IntentPlan(st, question)
	})

	slots := m.executeRound(ctx, plan)
	if err := authFailure(slots); err != nil {
		return err
	}

	var intents []aggregate.Intent
	for _, s := range slots {
		if s.err != nil {
			m.logger.Warn("intent poll lost agent=%s: %v", s.agent.Label, s.err)
			continue
		}
		intent, err := m.agg.ParseIntent(s.text)
		if err != nil {
			m.logger.Warn("intent unparseable agent=%s: %v", s.agent.Label, err)
			continue
		}
		intents = append(intents, intent)
	}
	if len(intents) == 0 {
		return m.failRound(plan, slots, 1, "no agent declared an intent")
	}

	choice := m.agg.TallyIntents(intents)
	m.logger.Info("choice poll resolved decision=%s declared=%d of %d", choice, len(intents), len(slots))
	ok := m.advance(func(st *core.State) {
		st.AppendMessage(core.NewMessage(core.AuthorSystem,
			fmt.Sprintf("The agents chose to %s.", choice), plan.Round))
	})
	if !ok {
		return errConversationClosed
	}

	if choice == aggregate.IntentCollaborate {
		return m.runCollaborative(ctx, question)
	}
	return m.runCompetitive(ctx, question)
}
