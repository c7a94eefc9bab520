package completion

import "fmt"

// MaxTurnsError reports that the model kept requesting tools after the turn
// limit was reached, without producing a terminal answer.
type MaxTurnsError struct {
	MaxTurns int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("max turns (%d) reached without a final response", e.MaxTurns)
}

// PromptCancelledError reports that the turn was aborted, either because the
// context ended or because a hook asked to terminate.
type PromptCancelledError struct {
	Reason string
}

func (e *PromptCancelledError) Error() string {
	return fmt.Sprintf("prompt cancelled: %s", e.Reason)
}
