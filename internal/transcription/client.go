package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/isonova/speech-to-cases/internal/logger"
	"github.com/isonova/speech-to-cases/internal/types"
)

// Client talks to the speech service: POST the audio, poll for completion,
// download the transcript. A "ModelLoading" status means the service has not
// cached the model weights yet; the client triggers a warmup fetch and
// retries once.
type Client struct {
	BaseURL  string
	CacheDir string

	httpClient *http.Client
	pollEvery  time.Duration
	pollLimit  int

	// mediaID of the in-flight submission. One Client serves one run at a
	// time, matching the single-threaded pipeline.
	mediaID string
}

func NewClient(baseURL, cacheDir string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		CacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollEvery:  1500 * time.Millisecond,
		pollLimit:  40,
	}
}

type publishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId       string `json:"MediaId"`
		Status        string `json:"Status"`
		TranscriptURL string `json:"TranscriptURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type statusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status        string `json:"Status"` // Success, Queued, Processing, ModelLoading, Failed
		TranscriptURL string `json:"TranscriptURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

func (c *Client) Transcribe(ctx context.Context, audioPath string) (types.Transcript, error) {
	log := logger.New().WithField("module", "transcription").WithField("audio", audioPath)
	if c.BaseURL == "" {
		return types.Transcript{}, errf("config", "TRANSCRIBE_URL not set")
	}

	transcriptURL, err := c.submit(ctx, audioPath)
	if err != nil {
		return types.Transcript{}, err
	}
	if transcriptURL == "" {
		transcriptURL, err = c.poll(ctx, audioPath, false)
		if err != nil {
			return types.Transcript{}, err
		}
	}
	log.WithField("transcript_url", transcriptURL).Info("downloading transcript")
	return c.download(ctx, transcriptURL)
}

// submit uploads the audio. Returns a transcript URL when the service
// already has a result for this file, else empty (caller polls).
func (c *Client) submit(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", &Error{Op: "open audio", Err: err}
	}

	// The multipart body is rebuilt for every attempt: a retried POST must
	// not resend an already-consumed stream.
	build := func() (*http.Request, error) {
		f, err := os.Open(audioPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, err
		}
		w.WriteField("cacheDir", c.CacheDir)
		_ = w.Close()

		req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/transcribe", &b)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	var resp publishResponse
	if err := c.doJSON(ctx, build, &resp); err != nil {
		return "", &Error{Op: "submit", Err: err}
	}
	if resp.Code != 200 {
		return "", errf("submit", "code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return resp.Data.TranscriptURL, nil
	}
	c.mediaID = resp.Data.MediaId
	return "", nil
}

func (c *Client) poll(ctx context.Context, audioPath string, warmed bool) (string, error) {
	for i := 0; i < c.pollLimit; i++ {
		select {
		case <-ctx.Done():
			return "", &Error{Op: "poll", Err: ctx.Err()}
		case <-time.After(c.pollEvery):
		}

		u, _ := url.Parse(c.BaseURL + "/getstatus")
		q := u.Query()
		q.Set("mediaId", c.mediaID)
		u.RawQuery = q.Encode()
		build := func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		}

		var s statusResponse
		if err := c.doJSON(ctx, build, &s); err != nil {
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptURL, nil
		case "Queued", "Processing":
			continue
		case "ModelLoading":
			// Transient: model weights not cached yet. Trigger the fetch
			// and retry the poll loop exactly once.
			if warmed {
				return "", errf("poll", "model still loading after warmup")
			}
			if err := c.warmup(ctx); err != nil {
				return "", err
			}
			return c.poll(ctx, audioPath, true)
		case "Failed":
			return "", errf("model", "speech service failed: %s", s.Reason)
		}
	}
	return "", errf("poll", "transcription did not complete")
}

// warmup asks the service to populate its model-weight cache.
func (c *Client) warmup(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"cacheDir": c.CacheDir})
	req, _ := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/warmup", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: "warmup", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return errf("warmup", "status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) download(ctx context.Context, rawURL string) (types.Transcript, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, &Error{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return types.Transcript{}, errf("download", "status=%d body=%s", resp.StatusCode, string(b))
	}
	body, _ := io.ReadAll(resp.Body)

	var tr types.Transcript
	if err := json.Unmarshal(body, &tr); err != nil {
		// Older service versions return the bare transcript text.
		tr = types.Transcript{Text: strings.TrimSpace(string(body))}
	}
	if tr.Text == "" && len(tr.Utterances) > 0 {
		parts := make([]string, 0, len(tr.Utterances))
		for _, u := range tr.Utterances {
			parts = append(parts, strings.TrimSpace(u.Text))
		}
		tr.Text = strings.Join(parts, " ")
	}
	return tr, nil
}

// doJSON executes build for every attempt and decodes the JSON response,
// retrying transport and 5xx failures with exponential backoff. build must
// return a fresh request each call so a retried POST carries a full body.
func (c *Client) doJSON(ctx context.Context, build func() (*http.Request, error), target interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
		req, err := build()
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return lastErr
	}
	return nil
}
