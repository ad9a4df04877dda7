package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/isonova/speech-to-cases/internal/artifact"
	"github.com/isonova/speech-to-cases/internal/segmentation"
	"github.com/isonova/speech-to-cases/internal/types"
)

type fakeTranscriber struct {
	transcript types.Transcript
	err        error
	calls      int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (types.Transcript, error) {
	f.calls++
	return f.transcript, f.err
}

// fakeSegmenter cuts one case per sentence, which keeps the partition
// invariant without an embedder.
type fakeSegmenter struct {
	err   error
	calls int
}

func (f *fakeSegmenter) Segment(_ context.Context, tr types.Transcript) ([]types.Case, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	units := segmentation.Units(tr)
	cases := make([]types.Case, 0, len(units))
	for i, u := range units {
		cases = append(cases, types.Case{CaseIndex: i, Text: u, StartUnit: i, EndUnit: i})
	}
	return cases, nil
}

type fakeSummarizer struct {
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, cases []types.Case) ([]types.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Summary, 0, len(cases))
	for _, c := range cases {
		out = append(out, types.Summary{CaseIndex: c.CaseIndex, Summary: "sum: " + c.Text})
	}
	return out, nil
}

type fixture struct {
	transcriber *fakeTranscriber
	segmenter   *fakeSegmenter
	summarizer  *fakeSummarizer
	store       *artifact.Store
	runner      *Runner
	audio       string
}

func newFixture(t *testing.T, transcript types.Transcript) *fixture {
	t.Helper()
	dir := t.TempDir()
	audio := filepath.Join(dir, "call.wav")
	if err := os.WriteFile(audio, []byte("fake-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		transcriber: &fakeTranscriber{transcript: transcript},
		segmenter:   &fakeSegmenter{},
		summarizer:  &fakeSummarizer{},
		store:       artifact.NewStore(filepath.Join(dir, "call.cases")),
		audio:       audio,
	}
	f.runner = NewRunner(f.transcriber, f.segmenter, f.summarizer, f.store)
	return f
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	records, err := f.runner.Run(context.Background(), f.audio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.runner.State() != StateDone {
		t.Fatalf("expected DONE, got %s", f.runner.State())
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	for i, r := range records {
		if r.CaseIndex != i {
			t.Errorf("record %d has case_index %d", i, r.CaseIndex)
		}
		if r.Summary == "" {
			t.Errorf("record %d missing summary", i)
		}
	}
	// all three artifacts persisted
	if _, err := f.store.LoadTranscript(); err != nil {
		t.Errorf("transcript not persisted: %v", err)
	}
	if _, err := f.store.LoadCases(); err != nil {
		t.Errorf("cases not persisted: %v", err)
	}
	if !f.store.HasOutput() {
		t.Error("combined output not persisted")
	}
}

func TestRunEmptyAudio(t *testing.T) {
	f := newFixture(t, types.Transcript{})
	records, err := f.runner.Run(context.Background(), f.audio)
	if err != nil {
		t.Fatalf("empty audio must not fail: %v", err)
	}
	if f.runner.State() != StateDone {
		t.Fatalf("expected DONE, got %s", f.runner.State())
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result, got %+v", records)
	}
	if !f.store.HasOutput() {
		t.Error("empty run should still write a valid empty output")
	}
}

func TestRunTranscriptionFailure(t *testing.T) {
	f := newFixture(t, types.Transcript{})
	f.transcriber.err = errors.New("unsupported codec")
	_, err := f.runner.Run(context.Background(), f.audio)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.runner.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", f.runner.State())
	}
	if f.segmenter.calls != 0 || f.summarizer.calls != 0 {
		t.Fatal("downstream stages must not run after transcription failure")
	}
	if _, lerr := f.store.LoadTranscript(); !errors.Is(lerr, artifact.ErrMissing) {
		t.Errorf("failed stage must not persist an artifact: %v", lerr)
	}
}

func TestRunSegmentationFailure(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	f.segmenter.err = errors.New("embedding model down")
	_, err := f.runner.Run(context.Background(), f.audio)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.runner.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", f.runner.State())
	}
	if f.summarizer.calls != 0 {
		t.Fatal("summarization must not run after segmentation failure")
	}
	if _, lerr := f.store.LoadCases(); !errors.Is(lerr, artifact.ErrMissing) {
		t.Errorf("no cases artifact may exist after a failed segmentation: %v", lerr)
	}
	if f.store.HasOutput() {
		t.Error("failed run must not produce combined output")
	}
	// the transcript from the completed stage stays for inspection
	if _, lerr := f.store.LoadTranscript(); lerr != nil {
		t.Errorf("completed stage artifact should remain: %v", lerr)
	}
}

func TestRunSummarizationFailureKeepsUpstreamArtifacts(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	f.summarizer.err = errors.New("llm down")
	_, err := f.runner.Run(context.Background(), f.audio)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.runner.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", f.runner.State())
	}
	if f.store.HasOutput() {
		t.Error("failed run must not produce combined output")
	}
	if _, lerr := f.store.LoadCases(); lerr != nil {
		t.Errorf("cases artifact should remain: %v", lerr)
	}
}

func TestRunResumesFromPersistedArtifacts(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	if _, err := f.runner.Run(context.Background(), f.audio); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if f.transcriber.calls != 1 || f.segmenter.calls != 1 || f.summarizer.calls != 1 {
		t.Fatalf("first run call counts off: %d/%d/%d", f.transcriber.calls, f.segmenter.calls, f.summarizer.calls)
	}

	if _, err := f.runner.Run(context.Background(), f.audio); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.transcriber.calls != 1 {
		t.Errorf("second run must reuse the persisted transcript, got %d calls", f.transcriber.calls)
	}
	if f.segmenter.calls != 1 {
		t.Errorf("second run must reuse the persisted cases, got %d calls", f.segmenter.calls)
	}
	if f.summarizer.calls != 1 {
		t.Errorf("second run must reuse the persisted output, got %d calls", f.summarizer.calls)
	}
}

func TestRunIdempotentOutput(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	first, err := f.runner.Run(context.Background(), f.audio)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstBytes, err := os.ReadFile(f.store.OutputJSONPath())
	if err != nil {
		t.Fatal(err)
	}

	second, err := f.runner.Run(context.Background(), f.audio)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondBytes, err := os.ReadFile(f.store.OutputJSONPath())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("runs returned different results")
	}
	if string(firstBytes) != string(secondBytes) {
		t.Fatal("output artifact changed between identical runs")
	}
}

func TestRunRecomputesCorruptCases(t *testing.T) {
	f := newFixture(t, types.Transcript{Text: "Reset my password. Explain my bill."})
	if err := os.MkdirAll(f.store.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.store.CasesPath(), []byte(`{"cases":[{"case_index":7,"text":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.runner.Run(context.Background(), f.audio); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.segmenter.calls != 1 {
		t.Fatalf("corrupt cases artifact must be recomputed, got %d calls", f.segmenter.calls)
	}
	cases, err := f.store.LoadCases()
	if err != nil {
		t.Fatalf("recomputed cases should validate: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 recomputed cases, got %d", len(cases))
	}
}

func TestRunDownstreamIterationSkipsUpstream(t *testing.T) {
	// Pre-seed only the transcript, as if a previous run crashed before
	// segmentation finished.
	f := newFixture(t, types.Transcript{Text: "never used"})
	if err := f.store.SaveTranscript(types.Transcript{Text: "Reset my password. Explain my bill."}); err != nil {
		t.Fatal(err)
	}
	records, err := f.runner.Run(context.Background(), f.audio)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.transcriber.calls != 0 {
		t.Fatalf("transcription must be skipped, got %d calls", f.transcriber.calls)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records from persisted transcript, got %d", len(records))
	}
}
