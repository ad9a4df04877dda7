package summarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client summarizes through an LLM gateway speaking the chat-completions
// shape: POST a messages payload with Bearer auth, expect the summary as
// the first choice's content.
type Client struct {
	APIURL string
	APIKey string
	Model  string

	httpClient *http.Client
	retryMax   time.Duration
}

func NewClient(apiURL, apiKey, model string) *Client {
	return &Client{
		APIURL:     apiURL,
		APIKey:     apiKey,
		Model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryMax:   20 * time.Second,
	}
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if c.APIURL == "" || c.APIKey == "" {
		return "", fmt.Errorf("llm gateway not configured")
	}
	prompt := "Summarize this call-center case in one short factual sentence. " +
		"State only what the caller wanted and what was discussed, no preamble:\n\n" + text
	reqBody := map[string]interface{}{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)

	var lastErr error
	var out string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, 12*time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(callCtx, "POST", c.APIURL, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm server error: %s", string(body))
			return lastErr
		}
		type choice struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		var parsed struct {
			Choices []choice `json:"choices"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
			out = strings.TrimSpace(parsed.Choices[0].Message.Content)
			if out != "" {
				lastErr = nil
				return nil
			}
		}
		lastErr = fmt.Errorf("unexpected llm response: %s", string(body))
		return lastErr
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retryMax
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("llm summarization failed: %w", lastErr)
	}
	return out, nil
}

// MockSummarizer is the deterministic offline Summarizer: the first
// MaxWords words of the input, ellipsized when cut.
type MockSummarizer struct {
	MaxWords int
}

func (m MockSummarizer) Summarize(_ context.Context, text string) (string, error) {
	max := m.MaxWords
	if max <= 0 {
		max = 25
	}
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " "), nil
	}
	return strings.Join(words[:max], " ") + "...", nil
}
