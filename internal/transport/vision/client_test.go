package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return New(&Config{
		BaseURL:      serverURL,
		APIKey:       "test-key",
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		PollAttempts: 5,
		Logger:       zap.NewNop(),
	})
}

func TestAnalyze_SynchronousResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["image_url"] != "https://cdn.example.com/a.jpg" {
			t.Errorf("unexpected image url: %s", req["image_url"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"description": "a foggy harbor at dawn",
			"mood":        "calm",
			"lighting":    "soft morning light",
			"colors":      []string{"grey", "blue"},
			"tags":        []string{"harbor", "fog"},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	result, err := c.Analyze(context.Background(), "https://cdn.example.com/a.jpg")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Description() != "a foggy harbor at dawn" {
		t.Errorf("unexpected description: %q", result.Description())
	}
	if result.Mood() != "calm" || result.Lighting() != "soft morning light" {
		t.Errorf("unexpected analysis: %+v", result)
	}
	if len(result.Tags()) != 2 {
		t.Errorf("unexpected tags: %v", result.Tags())
	}
}

func TestAnalyze_AsyncJobPolledToCompletion(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j1"})
		case "/jobs/j1":
			if polls.Add(1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":      "complete",
				"description": "a neon-lit alley",
				"tags":        []string{"neon"},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	result, err := c.Analyze(context.Background(), "https://cdn.example.com/b.jpg")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Description() != "a neon-lit alley" {
		t.Errorf("unexpected description: %q", result.Description())
	}
	if polls.Load() != 3 {
		t.Errorf("expected 3 polls, got %d", polls.Load())
	}
}

func TestRunJob_ExplicitFailureIsTerminal(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j1"})
		case "/jobs/j1":
			polls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": "unreadable image"})
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.runJob(context.Background(), "https://cdn.example.com/c.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for explicit failure, got %d", resp.StatusCode)
	}
	if polls.Load() != 1 {
		t.Errorf("expected polling to stop after explicit failure, got %d polls", polls.Load())
	}
}

func TestRunJob_PollingCeilingMapsToTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j1"})
		case "/jobs/j1":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.runJob(context.Background(), "https://cdn.example.com/d.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("expected 504 after polling ceiling, got %d", resp.StatusCode)
	}
}

func TestRunJob_SubmitClientErrorReturnedAsIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing image_url"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.runJob(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
