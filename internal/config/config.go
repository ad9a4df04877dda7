// Package config holds the pipeline configuration: segmentation and
// summarization policy knobs, model-service endpoints, and the model-weight
// cache location. Defaults are overridden first by an optional YAML file,
// then by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Speech service (transcription stage).
	TranscribeURL string `yaml:"transcribe_url"`
	// Embedding service (segmentation stage).
	EmbedURL   string `yaml:"embed_url"`
	EmbedModel string `yaml:"embed_model"`
	// LLM gateway (summarization stage).
	SummaryURL   string `yaml:"summary_url"`
	SummaryKey   string `yaml:"summary_key"`
	SummaryModel string `yaml:"summary_model"`

	// Segmentation policy. A boundary is declared where smoothed cosine
	// similarity between adjacent units drops below SimThreshold; cases
	// shorter than MinCaseWords are merged away.
	SimThreshold  float64 `yaml:"sim_threshold"`
	SmoothWindow  int     `yaml:"smooth_window"`
	MergeMinWords int     `yaml:"merge_min_words"`
	MinCaseWords  int     `yaml:"min_case_words"`

	// Summarization policy. Case text beyond MaxModelChars is truncated
	// before the model call; cleaned text under PassthroughWords is used
	// as its own summary.
	MaxModelChars    int `yaml:"max_model_chars"`
	PassthroughWords int `yaml:"passthrough_words"`

	// Classify attaches keyword-heuristic triage (category, flags, risk
	// score) to each summarized case; CleanSummaries adds a post-processed
	// short factual summary next to the raw one. Both default off to keep
	// the output minimal.
	Classify       bool `yaml:"classify"`
	CleanSummaries bool `yaml:"clean_summaries"`

	// CacheDir is the model-weight cache shared by the model services.
	// Injectable so test and concurrent runs can isolate their caches.
	CacheDir string `yaml:"cache_dir"`

	// OutDir overrides the per-run artifact directory derived from the
	// audio path.
	OutDir string `yaml:"out_dir"`

	// Mock switches every stage to its deterministic offline backend.
	Mock bool `yaml:"mock"`
}

// Default returns the documented defaults. The segmentation numbers are the
// tuned values the production models were calibrated against.
func Default() Config {
	return Config{
		EmbedModel:       "all-MiniLM-L6-v2",
		SummaryModel:     "sshleifer/distilbart-cnn-12-6",
		SimThreshold:     0.28,
		SmoothWindow:     3,
		MergeMinWords:    6,
		MinCaseWords:     35,
		MaxModelChars:    3000,
		PassthroughWords: 12,
		CacheDir:         ".model-cache",
	}
}

// LoadFile overlays values from a YAML config file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c. Call after LoadFile so
// the environment wins.
func (c *Config) ApplyEnv() {
	c.TranscribeURL = envOr("TRANSCRIBE_URL", c.TranscribeURL)
	c.EmbedURL = envOr("EMBED_URL", c.EmbedURL)
	c.EmbedModel = envOr("EMBED_MODEL", c.EmbedModel)
	c.SummaryURL = envOr("LLM_GATEWAY_URL", c.SummaryURL)
	c.SummaryKey = envOr("LLM_API_KEY", c.SummaryKey)
	c.SummaryModel = envOr("LLM_MODEL", c.SummaryModel)
	c.CacheDir = envOr("MODEL_CACHE_DIR", c.CacheDir)
	c.OutDir = envOr("CASEPIPE_OUT_DIR", c.OutDir)
	if v := os.Getenv("SIM_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimThreshold = f
		}
	}
	if v := os.Getenv("MIN_CASE_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinCaseWords = n
		}
	}
	if os.Getenv("CLASSIFY_CASES") == "true" {
		c.Classify = true
	}
	if os.Getenv("CLEAN_SUMMARIES") == "true" {
		c.CleanSummaries = true
	}
	if os.Getenv("USE_MOCK_MODELS") == "true" {
		c.Mock = true
	}
}

// Validate rejects configurations no stage could run with.
func (c Config) Validate() error {
	if c.SimThreshold < 0 || c.SimThreshold > 1 {
		return fmt.Errorf("sim_threshold %v out of [0,1]", c.SimThreshold)
	}
	if c.SmoothWindow < 1 {
		return fmt.Errorf("smooth_window must be >= 1, got %d", c.SmoothWindow)
	}
	if c.MinCaseWords < 0 {
		return fmt.Errorf("min_case_words must be >= 0, got %d", c.MinCaseWords)
	}
	if c.MaxModelChars < 1 {
		return fmt.Errorf("max_model_chars must be >= 1, got %d", c.MaxModelChars)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
