// Package pipeline orchestrates the three inference stages:
// transcription -> segmentation -> summarization. Each stage's output is
// persisted before the next stage starts, and a valid persisted artifact is
// reused instead of recomputed, so iterating on a downstream stage never
// repeats upstream model inference.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/isonova/speech-to-cases/internal/artifact"
	"github.com/isonova/speech-to-cases/internal/logger"
	"github.com/isonova/speech-to-cases/internal/transcription"
	"github.com/isonova/speech-to-cases/internal/types"
)

// Segmenter is the segmentation stage as the orchestrator sees it.
type Segmenter interface {
	Segment(ctx context.Context, tr types.Transcript) ([]types.Case, error)
}

// Summarizer is the summarization stage as the orchestrator sees it.
type Summarizer interface {
	Summarize(ctx context.Context, cases []types.Case) ([]types.Summary, error)
}

// Runner drives one pipeline run at a time. Not safe for concurrent use;
// the pipeline is deliberately single-threaded and sequential.
type Runner struct {
	transcriber transcription.Transcriber
	segmenter   Segmenter
	summarizer  Summarizer
	store       *artifact.Store

	state State
	runID string
}

func NewRunner(t transcription.Transcriber, seg Segmenter, sum Summarizer, store *artifact.Store) *Runner {
	return &Runner{
		transcriber: t,
		segmenter:   seg,
		summarizer:  sum,
		store:       store,
		state:       StateStart,
	}
}

// State returns the orchestrator's current (or final) state.
func (r *Runner) State() State { return r.state }

// fail moves to FAILED and wraps the originating stage's error with enough
// context to diagnose without rerunning.
func (r *Runner) fail(stage string, err error) error {
	r.state = StateFailed
	return fmt.Errorf("%s stage failed: %w", stage, err)
}

// Run executes the full pipeline for one audio artifact. On failure no
// combined output is written or overwritten; artifacts of stages that
// completed earlier stay on disk for inspection and resumption.
func (r *Runner) Run(ctx context.Context, audioPath string) ([]types.CaseRecord, error) {
	r.state = StateStart
	r.runID = uuid.New().String()
	log := logger.New().WithRun(r.runID, audioPath)
	log.Info("pipeline run starting")

	// ---- transcription ----
	if err := r.transition(StateTranscribing); err != nil {
		return nil, r.fail("orchestrator", err)
	}
	tr, cached, err := r.transcribe(ctx, audioPath, log)
	if err != nil {
		return nil, r.fail("transcription", err)
	}
	log.WithField("cached", cached).WithField("transcript_bytes", len(tr.Text)).Info("transcription done")

	// ---- segmentation ----
	if err := r.transition(StateSegmenting); err != nil {
		return nil, r.fail("orchestrator", err)
	}
	cases, cached, err := r.segment(ctx, tr, log)
	if err != nil {
		return nil, r.fail("segmentation", err)
	}
	log.WithField("cached", cached).WithField("cases", len(cases)).Info("segmentation done")

	// ---- summarization ----
	if err := r.transition(StateSummarizing); err != nil {
		return nil, r.fail("orchestrator", err)
	}
	records, cached, err := r.summarize(ctx, cases, log)
	if err != nil {
		return nil, r.fail("summarization", err)
	}
	log.WithField("cached", cached).Info("summarization done")

	if err := r.transition(StateDone); err != nil {
		return nil, r.fail("orchestrator", err)
	}
	log.WithField("records", len(records)).Info("pipeline run complete")
	return records, nil
}

// transcribe returns the cached transcript when one is on disk, else runs
// the transcriber and persists the result before returning.
func (r *Runner) transcribe(ctx context.Context, audioPath string, log *logrus.Entry) (types.Transcript, bool, error) {
	tr, err := r.store.LoadTranscript()
	if err == nil {
		log.Info("reusing persisted transcript")
		return tr, true, nil
	}
	if !errors.Is(err, artifact.ErrMissing) {
		return types.Transcript{}, false, err
	}

	tr, err = r.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return types.Transcript{}, false, err
	}
	if err := r.store.SaveTranscript(tr); err != nil {
		return types.Transcript{}, false, err
	}
	return tr, false, nil
}

// segment reuses a valid persisted case set; a corrupt one is recomputed,
// not trusted.
func (r *Runner) segment(ctx context.Context, tr types.Transcript, log *logrus.Entry) ([]types.Case, bool, error) {
	cases, err := r.store.LoadCases()
	if err == nil {
		log.Info("reusing persisted cases")
		return cases, true, nil
	}
	if errors.Is(err, artifact.ErrSchema) {
		log.WithField("error", err.Error()).Warn("persisted cases invalid, recomputing")
	} else if !errors.Is(err, artifact.ErrMissing) {
		return nil, false, err
	}

	cases, err = r.segmenter.Segment(ctx, tr)
	if err != nil {
		return nil, false, err
	}
	if err := r.store.SaveCases(cases); err != nil {
		return nil, false, err
	}
	return cases, false, nil
}

// summarize treats the combined output as the summarization stage's
// artifact: a persisted output matching the current case set is reused
// verbatim, which is what makes a rerun byte-identical.
func (r *Runner) summarize(ctx context.Context, cases []types.Case, log *logrus.Entry) ([]types.CaseRecord, bool, error) {
	if records, err := r.store.LoadOutput(); err == nil && outputMatches(records, cases) {
		log.Info("reusing persisted pipeline output")
		return records, true, nil
	}

	summaries, err := r.summarizer.Summarize(ctx, cases)
	if err != nil {
		return nil, false, err
	}
	if len(summaries) != len(cases) {
		return nil, false, fmt.Errorf("got %d summaries for %d cases", len(summaries), len(cases))
	}
	records := types.JoinCases(cases, summaries)
	if err := r.store.SaveOutput(records); err != nil {
		return nil, false, err
	}
	return records, false, nil
}

func outputMatches(records []types.CaseRecord, cases []types.Case) bool {
	if len(records) != len(cases) {
		return false
	}
	for i := range records {
		if records[i].CaseIndex != cases[i].CaseIndex || records[i].Text != cases[i].Text {
			return false
		}
	}
	return true
}
