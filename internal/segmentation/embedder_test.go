package segmentation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClientEmbedBatch(t *testing.T) {
	var gotReq embedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1, 0}, {0, 1}}})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "all-MiniLM-L6-v2", "/tmp/cache")
	embs, err := c.Embed(context.Background(), []string{"first unit", "second unit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embs) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embs))
	}
	if gotReq.Model != "all-MiniLM-L6-v2" || len(gotReq.Texts) != 2 {
		t.Fatalf("request not a single batched call: %+v", gotReq)
	}
	if gotReq.CacheDir != "/tmp/cache" {
		t.Fatalf("cache dir not forwarded: %q", gotReq.CacheDir)
	}
}

func TestClientEmbedWarmupRetry(t *testing.T) {
	var warmups, embeds int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/warmup":
			atomic.AddInt32(&warmups, 1)
			fmt.Fprint(w, "{}")
		case "/embed":
			if atomic.AddInt32(&embeds, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1}}})
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "m", "")
	embs, err := c.Embed(context.Background(), []string{"unit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embs) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(embs))
	}
	if warmups != 1 {
		t.Fatalf("expected exactly one warmup, got %d", warmups)
	}
}

func TestClientEmbedServiceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Error: "model exploded"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "m", "")
	if _, err := c.Embed(context.Background(), []string{"unit"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClientEmbedUnconfigured(t *testing.T) {
	c := NewClient("", "m", "")
	if _, err := c.Embed(context.Background(), []string{"unit"}); err == nil {
		t.Fatal("expected error when EMBED_URL is unset")
	}
}
