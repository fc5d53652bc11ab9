// Package parse turns raw LLM output into typed structures: fenced JSON
// payloads, multi-file source blocks, and the lesson time-budget check.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONError marks output that could not be decoded as JSON after fence
// stripping. Callers surface it with endpoint-specific guidance.
type JSONError struct {
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("模型输出不是有效 JSON: %v", e.Err)
}

func (e *JSONError) Unwrap() error { return e.Err }

// SchemaError marks JSON that decoded fine but does not carry the shape the
// caller needs.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string { return e.Reason }

// StripCodeFence removes a leading markdown code fence (``` or ```json) plus
// its closing fence, leaving the payload. Content without a fence passes
// through trimmed.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	parts := strings.SplitN(content, "```", 3)
	if len(parts) < 2 {
		return content
	}
	inner := parts[1]
	if strings.HasPrefix(inner, "json") {
		inner = inner[4:]
	}
	return strings.TrimSpace(inner)
}

// DecodeJSON strips any code fence and unmarshals the payload into out.
func DecodeJSON(content string, out any) error {
	payload := StripCodeFence(content)
	if payload == "" {
		return &JSONError{Err: fmt.Errorf("empty content")}
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return &JSONError{Err: err}
	}
	return nil
}

// DecodeObject decodes into a generic map, the shape most extraction prompts
// return.
func DecodeObject(content string) (map[string]any, error) {
	var obj map[string]any
	if err := DecodeJSON(content, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// DecodeObjectList decodes a JSON array of objects, the shape schedule and
// page-list prompts return.
func DecodeObjectList(content string) ([]map[string]any, error) {
	var list []map[string]any
	if err := DecodeJSON(content, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// IntValue converts a decoded JSON value to int only when it is integral.
// Fractional numbers, strings and other types are rejected so validation
// stays strict about what the model produced.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
