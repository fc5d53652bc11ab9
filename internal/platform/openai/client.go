// Package openai wraps a chat-completion-compatible API for the generation
// pipelines. Credentials are per-user, so a Client is cheap to construct for
// each run rather than held globally.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teachflow/teachflow-backend/internal/pkg/httpx"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

// ErrorKind classifies a failed call so pipelines can branch without
// inspecting provider message text.
type ErrorKind int

const (
	// KindTransient covers retryable HTTP statuses, decode failures and
	// network errors; the client retries these within its attempt budget.
	KindTransient ErrorKind = iota
	// KindRateLimited aborts immediately; retrying makes congestion worse.
	KindRateLimited
	// KindFatal covers non-retryable statuses (bad credentials, unknown
	// model) and an exhausted attempt budget.
	KindFatal
)

type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error

	// RetryAfter carries the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// IsRateLimited reports whether err (anywhere in its chain) is a rate-limit
// classified failure.
func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}

// rateLimitVocabulary is the fallback classifier for providers that do not
// return a clean 429. Substring matching against human-readable error text is
// a known fragility; the status code check always runs first.
var rateLimitVocabulary = []string{"rate limit", "too many requests", "429"}

func looksRateLimited(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	for _, needle := range rateLimitVocabulary {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Config carries per-user endpoint settings. BaseURL is normalized so both
// "https://host" and "https://host/v1" work.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NormalizeBaseURL ensures the endpoint ends in /v1, the path the
// chat-completions route hangs off of.
func NormalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

// Client is the LLM boundary consumed by the pipelines.
type Client interface {
	// RunPrompt sends one system/user message pair and returns the
	// completion text. A response with no choices yields "" with no error;
	// strict callers treat empty output as their own failure case.
	RunPrompt(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)

	// StreamChat streams completion deltas for a message history, invoking
	// onDelta for each non-empty fragment, and returns the accumulated text.
	StreamChat(ctx context.Context, messages []Message, onDelta func(delta string)) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Model       string
	Temperature float64
}

const (
	maxAttempts   = 3
	backoffUnit   = 1500 * time.Millisecond
	maxRetryAfter = 15 * time.Second
	defaultModel  = "gpt-4"
)

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing AI API key")
	}
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing AI base URL")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *client) doOnce(ctx context.Context, req chatRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", &Error{Kind: KindTransient, Message: "encode chat request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "build chat request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "chat request failed", Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "read chat response", Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindFatal
		switch {
		case looksRateLimited(resp.StatusCode, string(raw)):
			kind = KindRateLimited
		case httpx.IsRetryableHTTPStatus(resp.StatusCode):
			kind = KindTransient
		}
		return "", &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("chat completion http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			RetryAfter: httpx.RetryAfterDuration(resp, 0, maxRetryAfter),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindTransient, Message: "decode chat response", Err: err}
	}
	if parsed.Error != nil {
		kind := KindTransient
		if looksRateLimited(0, parsed.Error.Message) {
			kind = KindRateLimited
		}
		return "", &Error{Kind: kind, Message: "chat completion error: " + parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		// No choices is not a transport failure; strict callers decide.
		return "", nil
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *client) RunPrompt(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = c.cfg.Model
	}
	req := chatRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		content, err := c.doOnce(ctx, req)
		if err == nil {
			return content, nil
		}
		if IsRateLimited(err) {
			return "", &Error{
				Kind:    KindRateLimited,
				Message: "已触发接口限流（Rate Limit）。请稍后再试或更换接口提供商。建议避免同时发起多个生成任务。",
				Err:     err,
			}
		}
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Kind == KindFatal {
			// Wrong credentials or model do not heal with retries.
			return "", &Error{
				Kind:       KindFatal,
				StatusCode: apiErr.StatusCode,
				Message:    fmt.Sprintf("AI 调用失败：%v", err),
				Err:        err,
			}
		}
		lastErr = err
		if attempt < maxAttempts {
			sleep := httpx.JitterSleep(time.Duration(attempt) * backoffUnit)
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				sleep = apiErr.RetryAfter
			}
			c.log.Warn("LLM call retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"sleep", sleep.String(),
				"error", err.Error(),
			)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", &Error{
		Kind:    KindFatal,
		Message: fmt.Sprintf("AI 调用失败：%v", lastErr),
		Err:     lastErr,
	}
}
