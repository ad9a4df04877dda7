// Package summarization produces one summary per case. Case text is cleaned
// and deterministically truncated to the model input limit before the call;
// very short cases skip the model and summarize as themselves.
package summarization

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/isonova/speech-to-cases/internal/logger"
	"github.com/isonova/speech-to-cases/internal/types"
)

// Error is a summarization stage failure. CaseIndex identifies the case
// that could not be summarized.
type Error struct {
	CaseIndex int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("summarization case %d: %v", e.CaseIndex, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Summarizer generates an abstractive summary for one span of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Options are the truncation and short-circuit policy knobs.
type Options struct {
	// MaxModelChars caps the text sent to the model. Longer case text is
	// truncated head-first; the untruncated text stays in the output
	// record, so nothing is dropped from the artifact.
	MaxModelChars int
	// PassthroughWords: cleaned text under this many words is its own
	// summary, no model call.
	PassthroughWords int
	// Classify attaches keyword-heuristic triage (category, flags, risk
	// score) to each summary.
	Classify bool
	// Polish adds a post-processed short factual summary next to the raw
	// model summary.
	Polish bool
}

// Stage summarizes cases in order. The stage fails on the first case that
// cannot be summarized; it never skips a case or substitutes an empty
// summary, so a partial summary set cannot masquerade as success.
type Stage struct {
	summarizer Summarizer
	opts       Options
}

func New(s Summarizer, opts Options) *Stage {
	if opts.MaxModelChars <= 0 {
		opts.MaxModelChars = 3000
	}
	return &Stage{summarizer: s, opts: opts}
}

// Summarize returns exactly one summary per case, same order.
func (s *Stage) Summarize(ctx context.Context, cases []types.Case) ([]types.Summary, error) {
	log := logger.New().WithField("module", "summarization")

	out := make([]types.Summary, 0, len(cases))
	for _, c := range cases {
		cleaned := CleanText(c.Text)
		var summary string
		switch {
		case cleaned == "":
			summary = ""
		case len(strings.Fields(cleaned)) < s.opts.PassthroughWords:
			summary = cleaned
		default:
			sm, err := s.summarizer.Summarize(ctx, truncateBytes(cleaned, s.opts.MaxModelChars))
			if err != nil {
				return nil, &Error{CaseIndex: c.CaseIndex, Err: err}
			}
			summary = normalizeSpace(sm)
		}
		entry := types.Summary{CaseIndex: c.CaseIndex, Summary: summary}
		if s.opts.Classify {
			entry.Triage = triageFor(cleaned)
		}
		if s.opts.Polish {
			entry.SummaryClean = PolishSummary(summary, c.Text)
		}
		log.WithField("case_index", c.CaseIndex).
			WithField("summary_words", len(strings.Fields(summary))).
			Debug("case summarized")
		out = append(out, entry)
	}
	return out, nil
}

// truncateBytes caps text at max bytes without splitting a multibyte rune:
// the cut backs off to the nearest rune boundary.
func truncateBytes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

var (
	bannerRe   = regexp.MustCompile(`={3,}[^=]*={3,}`)
	multiSpace = regexp.MustCompile(`\s+`)
)

// CleanText strips transcript markers and collapses whitespace and runs of
// three or more repeated filler words ("okay okay okay" -> "okay") before
// the model call.
func CleanText(text string) string {
	t := bannerRe.ReplaceAllString(text, "")
	t = multiSpace.ReplaceAllString(t, " ")
	t = collapseRepeats(strings.TrimSpace(t))
	return t
}

func collapseRepeats(s string) string {
	words := strings.Fields(s)
	var out []string
	i := 0
	for i < len(words) {
		j := i
		for j < len(words) && strings.EqualFold(words[j], words[i]) {
			j++
		}
		if j-i >= 3 {
			out = append(out, words[i])
		} else {
			out = append(out, words[i:j]...)
		}
		i = j
	}
	return strings.Join(out, " ")
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
