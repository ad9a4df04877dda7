package pipeline

import "testing"

func TestAllowedTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateStart, StateTranscribing},
		{StateTranscribing, StateSegmenting},
		{StateSegmenting, StateSummarizing},
		{StateSummarizing, StateDone},
		{StateStart, StateFailed},
		{StateTranscribing, StateFailed},
		{StateSegmenting, StateFailed},
		{StateSummarizing, StateFailed},
	}
	for _, tc := range allowed {
		if !allowedTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	disallowed := []struct{ from, to State }{
		{StateStart, StateSegmenting},
		{StateStart, StateDone},
		{StateTranscribing, StateSummarizing},
		{StateSegmenting, StateDone},
		{StateDone, StateFailed},
		{StateFailed, StateFailed},
		{StateDone, StateTranscribing},
		{StateFailed, StateStart},
	}
	for _, tc := range disallowed {
		if allowedTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be disallowed", tc.from, tc.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateStart, StateTranscribing, StateSegmenting, StateSummarizing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{StateDone, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
