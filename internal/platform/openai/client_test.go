package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	c, err := NewClient(logger.NewNop(), Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com":     "https://api.example.com/v1",
		"https://api.example.com/":    "https://api.example.com/v1",
		"https://api.example.com/v1":  "https://api.example.com/v1",
		"https://api.example.com/v1/": "https://api.example.com/v1",
		"":                            "",
	}
	for in, want := range cases {
		if got := NormalizeBaseURL(in); got != want {
			t.Fatalf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunPromptSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if err != nil {
		t.Fatalf("RunPrompt: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
}

func TestRunPromptEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if err != nil {
		t.Fatalf("empty choices must not error: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty content, got %q", out)
	}
}

func TestRunPromptRateLimitNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !IsRateLimited(err) {
		t.Fatalf("error should classify as rate limited: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("rate limit must abort after the first attempt, got %d calls", n)
	}
}

func TestRunPromptRateLimitByMessageVocabulary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"message":"Too many requests, slow down"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if !IsRateLimited(err) {
		t.Fatalf("vocabulary match should classify as rate limited: %v", err)
	}
}

func TestRunPromptRetriesTransientThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := c.RunPrompt(ctx, "sys", "user", Options{})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if IsRateLimited(err) {
		t.Fatalf("transient failure must not classify as rate limited: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestRunPromptHonorsRetryAfterHeader(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	start := time.Now()
	out, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if err != nil {
		t.Fatalf("RunPrompt: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected recovery on second attempt, got %q", out)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("Retry-After of 1s must delay the retry, elapsed %s", elapsed)
	}
}

func TestRunPromptNonRetryableStatusAborts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.RunPrompt(context.Background(), "sys", "user", Options{})
	if err == nil {
		t.Fatal("expected error for bad credentials")
	}
	if IsRateLimited(err) {
		t.Fatalf("auth failure must not classify as rate limited: %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindFatal {
		t.Fatalf("auth failure should classify as fatal: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("auth failure must abort after the first attempt, got %d calls", n)
	}
}

func TestStreamChatAccumulates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var deltas []string
	out, err := c.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected accumulated text, got %q", out)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 delta callbacks, got %d", len(deltas))
	}
}
