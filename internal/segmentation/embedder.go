package segmentation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Embedder computes one semantic embedding per input text. A single batched
// call covers the whole transcript.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Client calls an embedding service: POST /embed with the unit batch. A 503
// response means the service has not cached the model weights yet; the
// client triggers a warmup fetch and retries once.
type Client struct {
	BaseURL  string
	Model    string
	CacheDir string

	httpClient *http.Client
}

func NewClient(baseURL, model, cacheDir string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		CacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type embedRequest struct {
	Model    string   `json:"model"`
	Texts    []string `json:"texts"`
	CacheDir string   `json:"cache_dir,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("EMBED_URL not set")
	}
	out, warm, err := c.embedOnce(ctx, texts)
	if warm {
		// Model weights not cached yet: warm up, then retry exactly once.
		if werr := c.warmup(ctx); werr != nil {
			return nil, werr
		}
		out, _, err = c.embedOnce(ctx, texts)
	}
	return out, err
}

// embedOnce performs one batched call. The middle return reports a
// model-loading condition the caller may warm up and retry.
func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float64, bool, error) {
	payload, _ := json.Marshal(embedRequest{Model: c.Model, Texts: texts, CacheDir: c.CacheDir})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 20 * time.Second

	var parsed embedResponse
	var modelLoading bool
	var lastErr error
	op := func() error {
		req, _ := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/embed", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusServiceUnavailable {
			modelLoading = true
			return nil
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, false, lastErr
	}
	if modelLoading {
		return nil, true, fmt.Errorf("embedding model not loaded")
	}
	if parsed.Error != "" {
		return nil, false, fmt.Errorf("embedding service: %s", parsed.Error)
	}
	return parsed.Embeddings, false, nil
}

func (c *Client) warmup(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"model": c.Model, "cache_dir": c.CacheDir})
	req, _ := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/warmup", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("warmup: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// MockEmbedder is a deterministic offline Embedder: a hashed bag-of-words
// vector, so units sharing vocabulary score similar and unrelated topics
// diverge. Good enough to exercise boundary detection without model weights.
type MockEmbedder struct {
	Dim int
}

func (m MockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	dim := m.Dim
	if dim <= 0 {
		dim = 32
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec := make([]float64, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,!?;:\"'")
			if w == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(w))
			vec[int(h.Sum32())%dim]++
		}
		norm := 0.0
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range vec {
				vec[j] /= norm
			}
		}
		out[i] = vec
	}
	return out, nil
}
