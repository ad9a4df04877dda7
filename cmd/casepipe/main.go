package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"github.com/isonova/speech-to-cases/internal/artifact"
	"github.com/isonova/speech-to-cases/internal/config"
	"github.com/isonova/speech-to-cases/internal/logger"
	"github.com/isonova/speech-to-cases/internal/pipeline"
	"github.com/isonova/speech-to-cases/internal/segmentation"
	"github.com/isonova/speech-to-cases/internal/summarization"
	"github.com/isonova/speech-to-cases/internal/transcription"
	"github.com/isonova/speech-to-cases/internal/types"
	"github.com/isonova/speech-to-cases/internal/worklist"
)

const usage = `usage: casepipe <command> [flags] <path>

commands:
  transcribe <audio>           run transcription only, write transcript.txt
  segment    <transcript.txt>  run segmentation only, write cases.json
  summarize  <cases.json>      run summarization only, write pipeline output
  run        <audio>           run the full pipeline
  batch      <worklist.xlsx>   run the full pipeline for every row
  watch      <dir>             run the full pipeline for every new recording
`

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	outDir := fs.String("out", "", "artifact directory (default: <audio>.cases next to the input)")
	threshold := fs.Float64("threshold", -1, "similarity threshold for case boundaries")
	minCaseWords := fs.Int("min-case-words", -1, "minimum case length in words")
	cacheDir := fs.String("cache-dir", "", "model-weight cache directory")
	classify := fs.Bool("classify", false, "attach category/flags/risk triage to each case")
	clean := fs.Bool("clean", false, "add a post-processed summary_clean column")
	mock := fs.Bool("mock", false, "use deterministic offline model backends")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	target := fs.Arg(0)

	cfg := config.Default()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			log.WithError(err).Fatal("failed to load config file")
		}
	}
	cfg.ApplyEnv()
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *threshold >= 0 {
		cfg.SimThreshold = *threshold
	}
	if *minCaseWords >= 0 {
		cfg.MinCaseWords = *minCaseWords
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *classify {
		cfg.Classify = true
	}
	if *clean {
		cfg.CleanSummaries = true
	}
	if *mock {
		cfg.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx := context.Background()
	var err error
	switch command {
	case "transcribe":
		err = runTranscribe(ctx, cfg, target)
	case "segment":
		err = runSegment(ctx, cfg, target)
	case "summarize":
		err = runSummarize(ctx, cfg, target)
	case "run":
		err = runPipeline(ctx, cfg, target)
	case "batch":
		err = runBatch(ctx, cfg, target)
	case "watch":
		err = runWatch(ctx, cfg, target)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).WithField("command", command).Fatal("command failed")
	}
}

func storeFor(cfg config.Config, inputPath string) *artifact.Store {
	if cfg.OutDir != "" {
		return artifact.NewStore(cfg.OutDir)
	}
	return artifact.NewStore(artifact.DirFor(inputPath))
}

// storeAt places single-stage outputs next to the stage's input artifact.
func storeAt(cfg config.Config, artifactPath string) *artifact.Store {
	if cfg.OutDir != "" {
		return artifact.NewStore(cfg.OutDir)
	}
	return artifact.NewStore(filepath.Dir(artifactPath))
}

func newTranscriber(cfg config.Config) transcription.Transcriber {
	if cfg.Mock {
		return transcription.Mock{}
	}
	return transcription.NewClient(cfg.TranscribeURL, cfg.CacheDir)
}

func newSegmenter(cfg config.Config) *segmentation.Segmenter {
	var emb segmentation.Embedder
	if cfg.Mock {
		emb = segmentation.MockEmbedder{}
	} else {
		emb = segmentation.NewClient(cfg.EmbedURL, cfg.EmbedModel, cfg.CacheDir)
	}
	return segmentation.New(emb, segmentation.Options{
		SimThreshold:  cfg.SimThreshold,
		SmoothWindow:  cfg.SmoothWindow,
		MergeMinWords: cfg.MergeMinWords,
		MinCaseWords:  cfg.MinCaseWords,
	})
}

func newSummarizer(cfg config.Config) *summarization.Stage {
	var sum summarization.Summarizer
	if cfg.Mock {
		sum = summarization.MockSummarizer{}
	} else {
		sum = summarization.NewClient(cfg.SummaryURL, cfg.SummaryKey, cfg.SummaryModel)
	}
	return summarization.New(sum, summarization.Options{
		MaxModelChars:    cfg.MaxModelChars,
		PassthroughWords: cfg.PassthroughWords,
		Classify:         cfg.Classify,
		Polish:           cfg.CleanSummaries,
	})
}

func newRunner(cfg config.Config, store *artifact.Store) *pipeline.Runner {
	return pipeline.NewRunner(newTranscriber(cfg), newSegmenter(cfg), newSummarizer(cfg), store)
}

func runTranscribe(ctx context.Context, cfg config.Config, audioPath string) error {
	log := logger.New().WithField("command", "transcribe")
	store := storeFor(cfg, audioPath)
	tr, err := newTranscriber(cfg).Transcribe(ctx, audioPath)
	if err != nil {
		return err
	}
	if err := store.SaveTranscript(tr); err != nil {
		return err
	}
	log.WithField("path", store.TranscriptPath()).Info("transcript written")
	return nil
}

func runSegment(ctx context.Context, cfg config.Config, transcriptPath string) error {
	log := logger.New().WithField("command", "segment")
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", artifact.ErrMissing, transcriptPath)
		}
		return err
	}
	tr := types.Transcript{Text: strings.TrimSpace(string(data))}
	cases, err := newSegmenter(cfg).Segment(ctx, tr)
	if err != nil {
		return err
	}
	store := storeAt(cfg, transcriptPath)
	if err := store.SaveCases(cases); err != nil {
		return err
	}
	log.WithField("cases", len(cases)).WithField("path", store.CasesPath()).Info("cases written")
	return nil
}

func runSummarize(ctx context.Context, cfg config.Config, casesPath string) error {
	log := logger.New().WithField("command", "summarize")
	cases, err := artifact.LoadCasesFile(casesPath)
	if err != nil {
		return err
	}
	summaries, err := newSummarizer(cfg).Summarize(ctx, cases)
	if err != nil {
		return err
	}
	out := storeAt(cfg, casesPath)
	if err := out.SaveOutput(types.JoinCases(cases, summaries)); err != nil {
		return err
	}
	log.WithField("path", out.OutputJSONPath()).Info("pipeline output written")
	return nil
}

func runPipeline(ctx context.Context, cfg config.Config, audioPath string) error {
	log := logger.New().WithField("command", "run")
	store := storeFor(cfg, audioPath)
	runner := newRunner(cfg, store)
	records, err := runner.Run(ctx, audioPath)
	if err != nil {
		return err
	}
	log.WithField("records", len(records)).
		WithField("path", store.OutputJSONPath()).
		Info("pipeline output written")
	return nil
}

func runBatch(ctx context.Context, cfg config.Config, worklistPath string) error {
	log := logger.New().WithField("command", "batch")
	entries, err := worklist.Load(worklistPath)
	if err != nil {
		return err
	}
	log.WithField("entries", len(entries)).Info("worklist loaded")
	failures := 0
	for _, e := range entries {
		entryLog := log.WithField("call_id", e.CallID).WithField("audio", e.AudioPath)
		entryLog.Info("processing worklist entry")
		if err := runPipeline(ctx, cfg, e.AudioPath); err != nil {
			entryLog.WithError(err).Error("entry failed")
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d worklist entries failed", failures, len(entries))
	}
	return nil
}

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true, ".ogg": true,
}

// runWatch processes every recording dropped into dir until interrupted.
func runWatch(ctx context.Context, cfg config.Config, dir string) error {
	log := logger.New().WithField("command", "watch").WithField("dir", dir)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("watching for recordings")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !audioExts[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			log.WithField("audio", ev.Name).Info("new recording detected")
			if err := runPipeline(ctx, cfg, ev.Name); err != nil {
				log.WithError(err).WithField("audio", ev.Name).Error("pipeline failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		}
	}
}
