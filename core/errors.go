package core

import "fmt"

// ConfigError reports an invalid roster/mode combination. It is always raised
// before any invocation is issued; a conversation that produces a ConfigError
// never starts.
type ConfigError struct {
	Mode   Mode
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Mode.Name(), e.Reason)
}

// NewConfigError constructs a ConfigError.
func NewConfigError(mode Mode, format string, args ...any) *ConfigError {
	return &ConfigError{Mode: mode, Reason: fmt.Sprintf(format, args...)}
}

// RoundAbortError reports that too few invocations of a round succeeded for
// the mode's aggregator to produce a meaningful outcome. The conversation
// moves to PhaseAborted; already-resolved rounds are retained for inspection.
type RoundAbortError struct {
	Round     int
	Successes int
	Minimum   int
	Reason    string
}

// Error implements the error interface.
func (e *RoundAbortError) Error() string {
	return fmt.Sprintf("round %d aborted: %s (%d of %d required responses)",
		e.Round, e.Reason, e.Successes, e.Minimum)
}
