package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.SimThreshold != 0.28 {
		t.Errorf("SimThreshold default = %v", cfg.SimThreshold)
	}
	if cfg.SmoothWindow != 3 {
		t.Errorf("SmoothWindow default = %v", cfg.SmoothWindow)
	}
	if cfg.MergeMinWords != 6 {
		t.Errorf("MergeMinWords default = %v", cfg.MergeMinWords)
	}
	if cfg.MinCaseWords != 35 {
		t.Errorf("MinCaseWords default = %v", cfg.MinCaseWords)
	}
	if cfg.MaxModelChars != 3000 {
		t.Errorf("MaxModelChars default = %v", cfg.MaxModelChars)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casepipe.yaml")
	body := "sim_threshold: 0.4\nmin_case_words: 10\nembed_url: http://embed.local\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SimThreshold != 0.4 {
		t.Errorf("SimThreshold = %v", cfg.SimThreshold)
	}
	if cfg.MinCaseWords != 10 {
		t.Errorf("MinCaseWords = %v", cfg.MinCaseWords)
	}
	if cfg.EmbedURL != "http://embed.local" {
		t.Errorf("EmbedURL = %q", cfg.EmbedURL)
	}
	// untouched keys keep their defaults
	if cfg.SmoothWindow != 3 {
		t.Errorf("SmoothWindow overwritten: %v", cfg.SmoothWindow)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyEnvWins(t *testing.T) {
	t.Setenv("SIM_THRESHOLD", "0.55")
	t.Setenv("MODEL_CACHE_DIR", "/tmp/cache-a")
	t.Setenv("USE_MOCK_MODELS", "true")
	t.Setenv("CLASSIFY_CASES", "true")
	t.Setenv("CLEAN_SUMMARIES", "true")
	cfg := Default()
	cfg.SimThreshold = 0.4 // as if set by file
	cfg.ApplyEnv()
	if cfg.SimThreshold != 0.55 {
		t.Errorf("env should win over file: %v", cfg.SimThreshold)
	}
	if cfg.CacheDir != "/tmp/cache-a" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if !cfg.Mock {
		t.Error("USE_MOCK_MODELS should enable mock mode")
	}
	if !cfg.Classify || !cfg.CleanSummaries {
		t.Error("CLASSIFY_CASES and CLEAN_SUMMARIES should enable triage and cleaning")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.SimThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.SimThreshold = -0.1 }},
		{"zero smooth window", func(c *Config) { c.SmoothWindow = 0 }},
		{"negative min case words", func(c *Config) { c.MinCaseWords = -1 }},
		{"zero model chars", func(c *Config) { c.MaxModelChars = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
