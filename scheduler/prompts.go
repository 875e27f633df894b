package scheduler

import "strings"

// Templates holds the prompt templates used to build round plans. Placeholders
// use {name} syntax and are substituted with Render; unknown placeholders are
// left intact so a truncated template fails loudly in transcripts instead of
// silently.
type Templates struct {
	// CollabInitial opens a collaborative conversation. Placeholder:
	// {user_question}.
	CollabInitial string
	// CollabRefine drives later collaborative rounds. Placeholders:
	// {user_question}, {proposals}.
	CollabRefine string
	// Proposal asks for an independent competitive proposal. Placeholder:
	// {user_question}.
	Proposal string
	// Vote asks an agent to elect the best pseudonymized proposal.
	// Placeholders: {user_question}, {proposals}, {aliases}.
	Vote string
	// Intent is the forced-choice sub-query of LLM's Choice mode.
	// Placeholder: {user_question}.
	Intent string
	// Rebuttal drives PvP exchange rounds after the first. Placeholders:
	// {user_question}, {transcript}.
	Rebuttal string
	// Moderator asks the PvP moderator for a verdict. Placeholders:
	// {user_question}, {challenger_a}, {challenger_b}, {transcript}.
	Moderator string
	// ConvergenceJudge asks a judge agent whether proposals agree.
	// Placeholders: {user_question}, {proposals}.
	ConvergenceJudge string
}

// DefaultTemplates returns the built-in prompt set.
func DefaultTemplates() Templates {
	return Templates{
		CollabInitial: `You are part of a collaborative AI team working together to answer questions. Provide your best answer to this question:

{user_question}`,

		CollabRefine: `You are part of a collaborative AI team. The question was:

{user_question}

Here are the current proposals from every team member:

{proposals}

Review the proposals. If you agree with one of them, restate that answer verbatim as your entire response. Otherwise, provide an improved answer that combines the strongest points.`,

		Proposal: `Provide your single best answer to the following question. Answer directly; do not discuss other possible answers.

{user_question}`,

		Vote: `You previously answered a question in a contest. The question was:

{user_question}

Here are all submitted proposals, identified only by pseudonym:

{proposals}

Vote for the single best proposal. Respond with JSON only, in exactly this shape:
{"vote": "<pseudonym>", "rationale": "<one sentence>"}

Valid pseudonyms: {aliases}`,

		Intent: `You are about to answer a question alongside other AI models. First decide how you want to engage. Respond with a single word: "collaborate" to work with the other models toward one joint answer, or "compete" to submit your own answer and have everyone vote.

The question is:

{user_question}`,

		Rebuttal: `You are in a debate. The question under discussion is:

{user_question}

The exchange so far:

{transcript}

Respond to your opponent's latest argument and strengthen your own position.`,

		Moderator: `You are a moderator judging a debate between two AI models. The question was:

{user_question}

{transcript}

Analyze both responses and declare a winner. Consider accuracy, completeness, clarity, and how well each response addresses the question. Explain your reasoning, then end your reply with JSON in exactly this shape:
{"winner": "{challenger_a}" or "{challenger_b}" or "draw", "rationale": "<one sentence>"}`,

		ConvergenceJudge: `You are judging whether a team of AI models has reached agreement. The question was:

{user_question}

Their current proposals:

{proposals}

Do these proposals express the same answer in substance? Reply with exactly one word on the first line: YES or NO.`,
	}
}

// Render substitutes {key} placeholders in tmpl with the given values.
func Render(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
