// Package segmentation cuts a transcript into topical cases. Adjacent text
// units are embedded, consecutive cosine similarity is smoothed, and a case
// boundary is declared wherever similarity drops below a configured
// threshold, subject to a minimum case length.
package segmentation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/isonova/speech-to-cases/internal/logger"
	"github.com/isonova/speech-to-cases/internal/types"
)

// Error is a segmentation stage failure. "No boundaries found" is never an
// error; only an unusable embedding backend is.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("segmentation %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Options are the tunable segmentation policy. These are policy knobs, not
// constants: see config.Default for the calibrated values.
type Options struct {
	// SimThreshold declares a boundary where smoothed similarity drops
	// below it.
	SimThreshold float64
	// SmoothWindow is the moving-average window over the similarity
	// series. Should be odd; 1 disables smoothing.
	SmoothWindow int
	// MergeMinWords folds units shorter than this into a neighbour before
	// embedding, so fillers ("Okay.", "Right.") don't fragment the series.
	MergeMinWords int
	// MinCaseWords suppresses boundaries that would cut a case shorter
	// than this many words.
	MinCaseWords int
}

// Segmenter runs the boundary-detection algorithm against an Embedder.
type Segmenter struct {
	embedder Embedder
	opts     Options
}

func New(e Embedder, opts Options) *Segmenter {
	if opts.SmoothWindow < 1 {
		opts.SmoothWindow = 1
	}
	return &Segmenter{embedder: e, opts: opts}
}

// Segment cuts the transcript into cases with sequential zero-based
// indices. An empty transcript yields an empty sequence; a transcript whose
// similarity series never drops below threshold yields a single case.
// Deterministic for a fixed transcript, options and embedder.
func (s *Segmenter) Segment(ctx context.Context, tr types.Transcript) ([]types.Case, error) {
	log := logger.New().WithField("module", "segmentation")

	units := Units(tr)
	units = mergeShortUnits(units, s.opts.MergeMinWords)
	if len(units) == 0 {
		return nil, nil
	}
	if len(units) == 1 {
		return []types.Case{{CaseIndex: 0, Text: units[0], StartUnit: 0, EndUnit: 0}}, nil
	}

	embs, err := s.embedder.Embed(ctx, units)
	if err != nil {
		return nil, &Error{Op: "embed", Err: err}
	}
	if len(embs) != len(units) {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("got %d embeddings for %d units", len(embs), len(units))}
	}

	sims := adjacentSimilarities(embs)
	smoothed := smooth(sims, s.opts.SmoothWindow)

	var boundaries []int
	for i, v := range smoothed {
		if v < s.opts.SimThreshold {
			boundaries = append(boundaries, i)
		}
	}
	log.WithField("units", len(units)).WithField("raw_boundaries", len(boundaries)).Debug("boundary scan")

	spans := spansFromBoundaries(len(units), boundaries)
	spans = enforceMinWords(units, spans, s.opts.MinCaseWords)

	cases := make([]types.Case, 0, len(spans))
	for i, sp := range spans {
		cases = append(cases, types.Case{
			CaseIndex: i,
			Text:      strings.Join(units[sp.start:sp.end+1], " "),
			StartUnit: sp.start,
			EndUnit:   sp.end,
		})
	}
	return cases, nil
}

// Units partitions a transcript into atomic units: utterance texts when the
// speech service produced them, else naive sentence splits of the blob.
func Units(tr types.Transcript) []string {
	if len(tr.Utterances) > 0 {
		out := make([]string, 0, len(tr.Utterances))
		for _, u := range tr.Utterances {
			if t := strings.TrimSpace(u.Text); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return SplitSentences(tr.Text)
}

// SplitSentences splits on sentence-final punctuation followed by
// whitespace. Naive but practical for call transcripts.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceEnd(r rune) bool { return r == '.' || r == '!' || r == '?' }

func wordCount(s string) int { return len(strings.Fields(s)) }

// mergeShortUnits folds units below minWords into a running buffer attached
// to the next full-length unit.
func mergeShortUnits(units []string, minWords int) []string {
	if minWords <= 1 {
		return units
	}
	var merged []string
	var buffer string
	for _, u := range units {
		if wordCount(u) < minWords {
			buffer = strings.TrimSpace(buffer + " " + u)
			continue
		}
		if buffer != "" {
			merged = append(merged, buffer)
			buffer = ""
		}
		merged = append(merged, u)
	}
	if buffer != "" {
		merged = append(merged, buffer)
	}
	return merged
}

// adjacentSimilarities returns the cosine similarity of each consecutive
// embedding pair; length is len(embs)-1.
func adjacentSimilarities(embs [][]float64) []float64 {
	sims := make([]float64, 0, len(embs)-1)
	for i := 1; i < len(embs); i++ {
		sims = append(sims, cosine(embs[i-1], embs[i]))
	}
	return sims
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// smooth applies an edge-padded moving average. Output length equals input
// length for odd windows.
func smooth(xs []float64, window int) []float64 {
	if window <= 1 || len(xs) == 0 {
		return xs
	}
	pad := window / 2
	padded := make([]float64, 0, len(xs)+2*pad)
	for i := 0; i < pad; i++ {
		padded = append(padded, xs[0])
	}
	padded = append(padded, xs...)
	for i := 0; i < pad; i++ {
		padded = append(padded, xs[len(xs)-1])
	}
	out := make([]float64, 0, len(padded)-window+1)
	for i := 0; i+window <= len(padded); i++ {
		sum := 0.0
		for j := 0; j < window; j++ {
			sum += padded[i+j]
		}
		out = append(out, sum/float64(window))
	}
	return out
}

type span struct {
	start, end int // inclusive unit indices
}

// spansFromBoundaries converts similarity-series boundary indices (boundary
// i sits between unit i and unit i+1) into unit spans covering [0, n).
func spansFromBoundaries(n int, boundaries []int) []span {
	var spans []span
	start := 0
	for _, b := range boundaries {
		if b < start || b >= n-1 {
			continue
		}
		spans = append(spans, span{start: start, end: b})
		start = b + 1
	}
	spans = append(spans, span{start: start, end: n - 1})
	return spans
}

// enforceMinWords suppresses boundaries that produce cases below minWords.
// A short case is merged into the case that follows it; a short tail case,
// having no follower, merges backwards.
func enforceMinWords(units []string, spans []span, minWords int) []span {
	if minWords <= 0 {
		return spans
	}
	words := func(sp span) int {
		total := 0
		for i := sp.start; i <= sp.end; i++ {
			total += wordCount(units[i])
		}
		return total
	}
	i := 0
	for i < len(spans) && len(spans) > 1 {
		if words(spans[i]) >= minWords {
			i++
			continue
		}
		if i+1 < len(spans) {
			spans[i+1].start = spans[i].start
			spans = append(spans[:i], spans[i+1:]...)
		} else {
			spans[i-1].end = spans[i].end
			spans = spans[:i]
			i--
		}
	}
	return spans
}
