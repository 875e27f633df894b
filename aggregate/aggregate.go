// Package aggregate turns raw round responses into mode-level results: parsed
// ballots, vote tallies, intent polls and moderator verdicts. Model output is
// adversarial input here; every parser tolerates prose around the structured
// payload and reports a plain error when nothing usable remains.
package aggregate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/logging"
)

// Intent is an agent's declared engagement preference in LLM's Choice mode.
type Intent string

const (
	// IntentCollaborate routes the round through the collaborative protocol.
	IntentCollaborate Intent = "collaborate"
	// IntentCompete routes the round through the competitive protocol.
	IntentCompete Intent = "compete"
)

// Options configure an Aggregator.
type Options struct {
	// Logger records discarded ballots and parse anomalies. Defaults to NoOp.
	Logger logging.Logger
}

// Aggregator resolves rounds into outcomes.
type Aggregator struct {
	logger logging.Logger
}

// New creates an Aggregator.
func New(optFns ...func(o *Options)) *Aggregator {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Aggregator{logger: logging.OrNoOp(opts.Logger)}
}

// TallyVotes discards self-votes, counts the rest and returns the verdict for
// a competitive round. A candidate wins with a strict majority of the valid
// votes; anything else, including zero valid ballots, resolves to NoWinner.
func (a *Aggregator) TallyVotes(round int, votes []core.Vote) core.Verdict {
	tally := map[string]int{}
	valid := 0
	for _, v := range votes {
		if v.Voter == v.Candidate {
			a.logger.Warn("discarding self-vote voter=%s", v.Voter)
			continue
		}
		tally[v.Candidate]++
		valid++
	}

	verdict := core.Verdict{Winner: core.NoWinner, Tally: tally, Round: round}
	if valid == 0 {
		verdict.Rationale = "no valid ballots were cast"
		return verdict
	}

	best, bestCount, unique := "", 0, false
	for candidate, n := range tally {
		switch {
		case n > bestCount:
			best, bestCount, unique = candidate, n, true
		case n == bestCount:
			unique = false
		}
	}
	if unique && bestCount*2 > valid {
		verdict.Winner = best
		verdict.Rationale = fmt.Sprintf("%d of %d valid votes", bestCount, valid)
		return verdict
	}

	verdict.Rationale = "no candidate reached a strict majority"
	return verdict
}

// ParseVote extracts a ballot from raw model output. The JSON payload the vote
// prompt asks for is preferred; failing that, the first pseudonym mentioned in
// the text is taken as the candidate. The returned Candidate is the real agent
// ID behind the alias.
func (a *Aggregator) ParseVote(voter, text string, aliases map[string]string) (core.Vote, error) {
	if js, ok := extractJSON(text); ok {
		choice := gjson.Get(js, "vote").String()
		if id, ok := resolveAlias(choice, aliases); ok {
			return core.Vote{
				Voter:     voter,
				Candidate: id,
				Rationale: gjson.Get(js, "rationale").String(),
			}, nil
		}
	}

	// Fall back to the earliest alias mention in free text.
	lower := strings.ToLower(text)
	best, bestIdx := "", len(lower)+1
	for alias, id := range aliases {
		if idx := strings.Index(lower, strings.ToLower(alias)); idx >= 0 && idx < bestIdx {
			best, bestIdx = id, idx
		}
	}
	if best != "" {
		return core.Vote{Voter: voter, Candidate: best}, nil
	}

	return core.Vote{}, fmt.Errorf("no recognizable ballot in %q", truncate(text, 80))
}

// ParseIntent extracts the collaborate/compete choice from raw model output.
func (a *Aggregator) ParseIntent(text string) (Intent, error) {
	probe := text
	if js, ok := extractJSON(text); ok {
		for _, key := range []string{"choice", "intent"} {
			if v := gjson.Get(js, key).String(); v != "" {
				probe = v
				break
			}
		}
	}

	lower := strings.ToLower(probe)
	collab := strings.Index(lower, "collaborat")
	compete := strings.Index(lower, "compet")
	switch {
	case collab >= 0 && (compete < 0 || collab < compete):
		return IntentCollaborate, nil
	case compete >= 0:
		return IntentCompete, nil
	}
	return "", fmt.Errorf("no recognizable intent in %q", truncate(text, 80))
}

// TallyIntents routes the round: a strict majority for collaborate selects the
// collaborative protocol, everything else, ties included, selects competitive.
func (a *Aggregator) TallyIntents(intents []Intent) Intent {
	collab := 0
	for _, i := range intents {
		if i == IntentCollaborate {
			collab++
		}
	}
	if collab*2 > len(intents) {
		return IntentCollaborate
	}
	return IntentCompete
}

// ParseJudgment extracts the moderator's verdict. labels maps challenger
// display labels to agent IDs. An explicit "draw" (or "tie"/"none") yields
// draw=true with no winner.
func (a *Aggregator) ParseJudgment(text string, labels map[string]string) (winnerID string, draw bool, rationale string, err error) {
	if js, ok := extractJSON(text); ok {
		verdict := gjson.Get(js, "winner").String()
		rationale = gjson.Get(js, "rationale").String()
		if isDraw(verdict) {
			return "", true, rationale, nil
		}
		if id, ok := resolveAlias(verdict, labels); ok {
			return id, false, rationale, nil
		}
	}

	// Some models ignore the JSON instruction; accept a label named on the
	// final non-empty line. A single label mention beats any draw wording on
	// that line ("Beta wins despite a tie in round 2" is a win, not a draw),
	// and mentioning both labels is ambiguous rather than a coin flip.
	lines := strings.Split(strings.TrimSpace(text), "\n")
	last := strings.ToLower(lines[len(lines)-1])
	var mentioned []string
	for label, id := range labels {
		if strings.Contains(last, strings.ToLower(label)) {
			mentioned = append(mentioned, id)
		}
	}
	if len(mentioned) == 1 {
		return mentioned[0], false, "", nil
	}
	if isDraw(last) || containsWord(last, "draw") || containsWord(last, "tie") {
		return "", true, "", nil
	}

	return "", false, "", fmt.Errorf("no recognizable verdict in %q", truncate(text, 80))
}

// containsWord reports whether s contains w as a whole word, so "tie" never
// matches inside "entities".
func containsWord(s, w string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if strings.EqualFold(f, w) {
			return true
		}
	}
	return false
}

func isDraw(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "draw", "tie", "none", "no winner":
		return true
	}
	return false
}

// resolveAlias matches a raw choice against an alias map, case-insensitively,
// accepting either the alias or the underlying ID.
func resolveAlias(choice string, aliases map[string]string) (string, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", false
	}
	for alias, id := range aliases {
		if strings.EqualFold(choice, alias) || choice == id {
			return id, true
		}
	}
	return "", false
}

// extractJSON finds the last syntactically valid JSON object embedded in
// text, expanding leftward from the final closing brace.
func extractJSON(text string) (string, bool) {
	end := strings.LastIndex(text, "}")
	if end < 0 {
		return "", false
	}
	for start := strings.LastIndex(text[:end], "{"); start >= 0; start = strings.LastIndex(text[:start], "{") {
		if candidate := text[start : end+1]; gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
