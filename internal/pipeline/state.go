package pipeline

import "fmt"

// State is the orchestrator's position in the run.
type State string

const (
	StateStart        State = "START"
	StateTranscribing State = "TRANSCRIBING"
	StateSegmenting   State = "SEGMENTING"
	StateSummarizing  State = "SUMMARIZING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Terminal reports whether the run is finished.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// allowedTransition encodes the fixed stage order. FAILED is reachable from
// every non-terminal state.
func allowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	switch from {
	case StateStart:
		return to == StateTranscribing
	case StateTranscribing:
		return to == StateSegmenting
	case StateSegmenting:
		return to == StateSummarizing
	case StateSummarizing:
		return to == StateDone
	default:
		return false
	}
}

// transition performs a validated state change.
func (r *Runner) transition(to State) error {
	if !allowedTransition(r.state, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}
