// Package transcription turns an audio artifact into a transcript by
// calling a speech service. The service owns decoding and resampling; this
// package owns the request/poll/download flow and the retry policy.
package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/isonova/speech-to-cases/internal/types"
)

// Transcriber converts one audio artifact into a transcript. An empty
// transcript is a valid result for silent audio, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (types.Transcript, error)
}

// Error is a transcription stage failure: undecodable audio, a failed model
// invocation, or exhausted retries against the speech service.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transcription %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func errf(op, format string, args ...any) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}

// Mock is a deterministic offline Transcriber for demos and tests. An empty
// audio file yields an empty transcript; anything else yields Text.
type Mock struct {
	Text string
}

func (m Mock) Transcribe(_ context.Context, audioPath string) (types.Transcript, error) {
	fi, err := os.Stat(audioPath)
	if err != nil {
		return types.Transcript{}, &Error{Op: "open audio", Err: err}
	}
	if fi.Size() == 0 {
		return types.Transcript{}, nil
	}
	text := m.Text
	if text == "" {
		text = "Hello, I am calling because my payment failed twice today. " +
			"The app shows an error at checkout and I need this fixed."
	}
	return types.Transcript{Text: strings.TrimSpace(text)}, nil
}
