package summarization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
}

func TestClientSummarize(t *testing.T) {
	var auth string
	var payload map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse("Caller asked to reset their password."))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "test-key", "test-model")
	got, err := c.Summarize(context.Background(), "long case text about a password reset")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Caller asked to reset their password." {
		t.Fatalf("got %q", got)
	}
	if auth != "Bearer test-key" {
		t.Fatalf("auth header = %q", auth)
	}
	if payload["model"] != "test-model" {
		t.Fatalf("model = %v", payload["model"])
	}
	msgs, ok := payload["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", payload["messages"])
	}
	content := msgs[0].(map[string]any)["content"].(string)
	if !strings.Contains(content, "password reset") {
		t.Fatalf("case text missing from prompt: %q", content)
	}
}

func TestClientSummarizeUnconfigured(t *testing.T) {
	c := NewClient("", "", "m")
	if _, err := c.Summarize(context.Background(), "text"); err == nil {
		t.Fatal("expected error when gateway is not configured")
	}
}

func TestClientSummarizeBadResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "k", "m")
	c.retryMax = 50 * time.Millisecond
	if _, err := c.Summarize(context.Background(), "text"); err == nil {
		t.Fatal("expected error for response without choices")
	}
}
