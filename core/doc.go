// Package core defines the shared data model for game-theoretic multi-agent
// conversations: agents and their mode-specific roles, chat modes, transcript
// messages, rounds with their resolved outcomes, votes, verdicts and the
// conversation state that a mode state machine owns and mutates.
//
// Types in this package are plain values with no I/O. The conversation State
// is mutated exclusively by its owning engine.Machine; every other component
// receives read-only snapshots produced by State.Clone.
package core
