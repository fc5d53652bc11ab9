package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamChat issues a streaming chat completion and feeds each content delta
// to onDelta as it arrives. Streaming does not retry: a broken stream midway
// through cannot be resumed transparently, so the error surfaces to the
// caller with whatever text accumulated so far discarded.
func (c *client) StreamChat(ctx context.Context, messages []Message, onDelta func(delta string)) (string, error) {
	req := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", &Error{Kind: KindTransient, Message: "encode stream request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "build stream request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "stream request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		kind := KindTransient
		if looksRateLimited(resp.StatusCode, string(raw)) {
			kind = KindRateLimited
		}
		return "", &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("stream completion http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				break
			}
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed keep-alive or comment lines are skipped.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &Error{Kind: KindTransient, Message: "read stream", Err: err}
	}
	return out.String(), nil
}
